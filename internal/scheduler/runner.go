package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/capability"
	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// runNode executes a single node to a settled status: acquire a worker slot,
// invoke the capability with timeout and bounded retry, commit declared
// outputs, and propagate skips on terminal non-optional failure. Exactly one
// outcome is always reported on done.
func (e *Executor) runNode(ctx context.Context, st *state, node *graph.TaskNode, sem chan struct{}, done chan<- outcome) {
	report := func(status graph.NodeStatus) {
		done <- outcome{nodeID: node.ID, status: status}
	}

	// Acquire a worker slot. Cancellation while queued settles the node
	// without it ever entering Running.
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		if tr, ok := st.transition(node.ID, graph.NodeStatusCancelled, "run cancelled"); ok {
			e.publishTransition(tr)
		}
		report(st.status(node.ID))
		return
	}
	defer func() { <-sem }()

	if ctx.Err() != nil {
		if tr, ok := st.transition(node.ID, graph.NodeStatusCancelled, "run cancelled"); ok {
			e.publishTransition(tr)
		}
		report(st.status(node.ID))
		return
	}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "scheduler.run_node",
			trace.WithAttributes(
				attribute.String("node.id", node.ID),
				attribute.String("node.capability", node.Capability),
				attribute.Int("node.revision_group", node.RevisionGroup),
			),
		)
		defer span.End()
	}

	impl, err := e.registry.Resolve(node.Capability)
	if err != nil {
		// An unregistered capability cannot recover by retrying.
		e.failNode(st, node, err.Error())
		if span != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		report(graph.NodeStatusFailed)
		return
	}

	policy := node.RetryPolicy
	if policy == nil {
		policy = graph.DefaultRetryPolicy()
	}

	for {
		attempt := st.bumpAttempt(node.ID)

		if attempt == 1 {
			tr, ok := st.transition(node.ID, graph.NodeStatusRunning, "")
			if !ok {
				// Settled by cancellation or skip propagation while queued.
				report(st.status(node.ID))
				return
			}
			e.publishTransition(tr)
		}

		attemptErr := e.attemptNode(ctx, node, impl)
		if attemptErr == nil {
			tr, _ := st.transition(node.ID, graph.NodeStatusSucceeded, "")
			e.publishTransition(tr)
			if span != nil {
				span.SetStatus(codes.Ok, "node succeeded")
			}
			report(graph.NodeStatusSucceeded)
			return
		}

		if ctx.Err() != nil {
			if tr, ok := st.transition(node.ID, graph.NodeStatusCancelled, "run cancelled"); ok {
				e.publishTransition(tr)
			}
			report(st.status(node.ID))
			return
		}

		attemptStatus := graph.NodeStatusFailed
		if types.IsCode(attemptErr, types.NODE_TIMEOUT) {
			attemptStatus = graph.NodeStatusTimedOut
		}
		final := attempt >= policy.MaxAttempts || !types.IsRetryable(attemptErr)

		for _, tr := range st.recordAttemptFailure(node.ID, attemptStatus, attemptErr.Error(), final) {
			e.publishTransition(tr)
		}

		e.logger.WarnContext(ctx, "node attempt failed",
			"run_id", e.runID,
			"node_id", node.ID,
			"attempt", attempt,
			"final", final,
			"error", attemptErr,
		)

		if final {
			e.propagateSkips(st, node, fmt.Sprintf("dependency %s failed: %v", node.ID, attemptErr))
			if span != nil {
				span.SetStatus(codes.Error, attemptErr.Error())
				span.RecordError(attemptErr)
			}
			report(graph.NodeStatusFailed)
			return
		}

		delay := policy.CalculateDelay(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			if tr, ok := st.transition(node.ID, graph.NodeStatusCancelled, "run cancelled"); ok {
				e.publishTransition(tr)
			}
			report(st.status(node.ID))
			return
		}
	}
}

// attemptNode performs one capability invocation and commits its outputs.
func (e *Executor) attemptNode(ctx context.Context, node *graph.TaskNode, impl capability.Capability) error {
	execCtx := ctx
	if node.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, node.Timeout)
		defer cancel()
	}

	inputs := e.collectInputs(node)

	outputs, err := impl.Invoke(execCtx, inputs)
	if execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return types.NewRetryableError(types.NODE_TIMEOUT,
			fmt.Sprintf("node %s timed out after %v", node.ID, node.Timeout))
	}
	if err != nil {
		var coreErr *types.CoreError
		if errors.As(err, &coreErr) {
			return err
		}
		// Opaque capability errors are containable, so the retry policy
		// applies to them.
		return &types.CoreError{
			Code:      types.AGENT_EXECUTION_FAILED,
			Message:   fmt.Sprintf("capability %s failed", node.Capability),
			Retryable: true,
			Cause:     err,
		}
	}

	return e.writeOutputs(ctx, node, outputs)
}

// collectInputs gathers the latest committed revision of every declared
// input. Waived inputs (optional producers that settled without writing) are
// simply absent from the set; the capability decides how to degrade.
func (e *Executor) collectInputs(node *graph.TaskNode) []*blackboard.Artifact {
	var inputs []*blackboard.Artifact
	seen := make(map[blackboard.Ref]struct{})

	for _, input := range node.DeclaredInputs {
		if input.IsWildcard() {
			for _, artifact := range e.store.LatestByKind(input.Kind) {
				ref := artifact.Ref()
				if _, dup := seen[ref]; dup {
					continue
				}
				seen[ref] = struct{}{}
				inputs = append(inputs, artifact)
			}
			continue
		}
		artifact, err := e.store.Latest(input.Kind, input.Key)
		if err != nil {
			continue
		}
		ref := artifact.Ref()
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		inputs = append(inputs, artifact)
	}
	return inputs
}

// writeOutputs commits every produced artifact to the blackboard under the
// node's current revision group. An output whose kind the node never declared
// is a schema violation and fails the attempt.
func (e *Executor) writeOutputs(ctx context.Context, node *graph.TaskNode, outputs []capability.Output) error {
	if len(outputs) == 0 {
		return types.NewRetryableError(types.SCHEMA_VALIDATION_FAILED,
			fmt.Sprintf("capability %s produced no outputs", node.Capability))
	}

	for _, out := range outputs {
		if !node.ProducesKind(out.Kind) {
			return types.NewRetryableError(types.SCHEMA_VALIDATION_FAILED,
				fmt.Sprintf("node %s produced undeclared kind %q", node.ID, out.Kind))
		}

		key := out.Key
		if key == "" {
			key = node.ID
		}
		schemaVersion := out.SchemaVersion
		if schemaVersion == "" {
			schemaVersion = "1.0.0"
		}

		note := out.Note
		if note == "" {
			note = fmt.Sprintf("revision group %d, attempt %d", node.RevisionGroup, node.Attempt)
		}

		artifact, err := e.commitRevision(node, out, key, schemaVersion, note)
		if err != nil {
			return err
		}
		e.publishArtifact(ctx, node, artifact)
	}
	return nil
}

// commitRevision retries the optimistic stale-write loop: read the expected
// next revision, attempt the put, refresh on contention.
func (e *Executor) commitRevision(node *graph.TaskNode, out capability.Output, key, schemaVersion, note string) (*blackboard.Artifact, error) {
	for {
		prior := e.store.Revisions(out.Kind, key)
		var provenance []blackboard.Provenance
		if len(prior) > 0 {
			provenance = append(provenance, prior[len(prior)-1].Provenance...)
		}
		provenance = append(provenance, blackboard.Provenance{
			ProducedBy: node.ID,
			At:         time.Now().UTC(),
			Note:       note,
		})

		artifact := &blackboard.Artifact{
			Kind:          out.Kind,
			SchemaVersion: schemaVersion,
			Key:           key,
			Revision:      uint64(len(prior)) + 1,
			Payload:       out.Payload,
			Confidence:    out.Confidence,
			Provenance:    provenance,
		}

		err := e.store.Put(artifact)
		if err == nil {
			return artifact, nil
		}
		if errors.Is(err, blackboard.ErrStaleWrite) {
			continue
		}
		return nil, types.WrapError(types.SCHEMA_VALIDATION_FAILED,
			fmt.Sprintf("node %s could not commit %s/%s", node.ID, out.Kind, key), err)
	}
}

// failNode records a non-retryable terminal failure and propagates skips.
func (e *Executor) failNode(st *state, node *graph.TaskNode, reason string) {
	if tr, ok := st.transition(node.ID, graph.NodeStatusFailed, reason); ok {
		e.publishTransition(tr)
	}
	e.propagateSkips(st, node, reason)
}

// propagateSkips marks all transitive dependents of a failed non-optional
// node as Skipped. Optional failures never skip dependents.
func (e *Executor) propagateSkips(st *state, node *graph.TaskNode, reason string) {
	if node.Optional {
		return
	}
	for _, tr := range st.skipDependents(node.ID, reason) {
		e.publishTransition(tr)
	}
}

func (e *Executor) publishArtifact(ctx context.Context, node *graph.TaskNode, artifact *blackboard.Artifact) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, events.Event{
		Type:  events.EventArtifactWritten,
		RunID: e.runID,
		Payload: events.ArtifactWrittenPayload{
			Kind:          artifact.Kind,
			Key:           artifact.Key,
			Revision:      artifact.Revision,
			SchemaVersion: artifact.SchemaVersion,
			ProducedBy:    node.ID,
			PayloadHash:   artifact.PayloadHash(),
			Payload:       artifact.Payload,
			Confidence:    artifact.Confidence,
		},
	})
}
