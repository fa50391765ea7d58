// Package scheduler executes task graphs: it dispatches nodes whose declared
// inputs are committed on the blackboard, bounded by a configured worker
// limit, and contains node failures at the node boundary through bounded
// retries and skip propagation.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/capability"
	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// DefaultMaxWorkers bounds concurrent node execution when no limit is
// configured.
const DefaultMaxWorkers = 4

// Result summarizes one execution pass over a task graph.
type Result struct {
	// GraphID identifies the executed graph.
	GraphID types.ID

	// NodeStatuses holds every node's final status for this pass.
	NodeStatuses map[string]graph.NodeStatus

	// Cancelled reports whether the run-scoped cancellation signal ended
	// the pass.
	Cancelled bool

	// Counts per terminal status.
	NodesSucceeded int
	NodesFailed    int
	NodesSkipped   int
	NodesCancelled int

	// Duration is the wall-clock time of the pass.
	Duration time.Duration
}

// FailedNonOptional reports whether any non-optional node failed.
func (r *Result) FailedNonOptional(g *graph.TaskGraph) bool {
	for id, status := range r.NodeStatuses {
		if status != graph.NodeStatusFailed {
			continue
		}
		if node := g.GetNode(id); node != nil && !node.Optional {
			return true
		}
	}
	return false
}

// outcome is a worker's completion report.
type outcome struct {
	nodeID string
	status graph.NodeStatus
}

// Executor runs task graphs for a single run. All cross-worker state lives on
// the blackboard; attempt counters and timers are private to each worker.
type Executor struct {
	runID      types.ID
	store      *blackboard.Store
	registry   *capability.Registry
	bus        events.Bus
	logger     *slog.Logger
	tracer     trace.Tracer
	maxWorkers int
}

// ExecutorOption is a functional option for configuring an Executor.
type ExecutorOption func(*Executor)

// WithLogger configures the executor's structured logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithTracer configures an OpenTelemetry tracer for execution spans.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithMaxWorkers configures the maximum number of nodes executing
// concurrently.
func WithMaxWorkers(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// WithEventBus configures the bus the executor publishes transitions to.
func WithEventBus(bus events.Bus) ExecutorOption {
	return func(e *Executor) {
		e.bus = bus
	}
}

// NewExecutor creates an executor bound to one run's blackboard and
// capability registry.
func NewExecutor(runID types.ID, store *blackboard.Store, registry *capability.Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		runID:      runID,
		store:      store,
		registry:   registry,
		logger:     slog.Default(),
		maxWorkers: DefaultMaxWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the graph until no node is Pending, Ready, or Running.
//
// Readiness is artifact-gated rather than computed level-by-level upfront:
// the loop re-seeds the ready set whenever an artifact lands (observed
// through blackboard subscriptions) or a worker settles. Node failures are
// contained; Execute returns an error only for cancellation or a stalled
// graph, never for individual node failures.
func (e *Executor) Execute(ctx context.Context, g *graph.TaskGraph) (*Result, error) {
	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "scheduler.execute",
			trace.WithAttributes(
				attribute.String("graph.id", g.ID.String()),
				attribute.Int("graph.node_count", len(g.Nodes)),
				attribute.Int("graph.replan_index", g.ReplanIndex),
			),
		)
		defer span.End()
	}

	e.logger.InfoContext(ctx, "starting graph execution",
		"run_id", e.runID,
		"graph_id", g.ID,
		"node_count", len(g.Nodes),
		"max_workers", e.maxWorkers,
	)

	startTime := time.Now()
	st := newState(g)

	subCtx, unsubscribe := context.WithCancel(context.Background())
	defer unsubscribe()
	wake := e.subscribeInputs(subCtx, g)

	sem := make(chan struct{}, e.maxWorkers)
	done := make(chan outcome)
	inFlight := 0
	cancelled := false

	for {
		if ctx.Err() != nil && !cancelled {
			cancelled = true
			for _, tr := range st.cancelRemaining("run cancelled") {
				e.publishTransition(tr)
			}
		}

		if !cancelled {
			for _, node := range st.readyCandidates(e.store) {
				tr, ok := st.transition(node.ID, graph.NodeStatusReady, "")
				if !ok {
					continue
				}
				e.publishTransition(tr)
				inFlight++
				go e.runNode(ctx, st, node, sem, done)
			}
		}

		if inFlight == 0 {
			if st.settled() {
				break
			}
			if cancelled {
				for _, tr := range st.cancelRemaining("run cancelled") {
					e.publishTransition(tr)
				}
				break
			}
			// Nothing running and nothing ready: the remaining pending
			// nodes are unreachable. Validated graphs only get here if a
			// capability wrote none of its declared outputs.
			e.logger.ErrorContext(ctx, "graph stalled with unreachable nodes",
				"run_id", e.runID,
				"graph_id", g.ID,
			)
			for _, id := range g.NodeIDs() {
				if st.status(id) == graph.NodeStatusPending {
					if tr, ok := st.transition(id, graph.NodeStatusSkipped, "inputs unreachable"); ok {
						e.publishTransition(tr)
					}
				}
			}
			continue
		}

		// Once cancellation is observed the loop only drains workers; a nil
		// channel keeps the select from spinning on the closed Done channel.
		var cancelC <-chan struct{}
		if !cancelled {
			cancelC = ctx.Done()
		}

		select {
		case o := <-done:
			inFlight--
			e.logger.DebugContext(ctx, "node settled",
				"run_id", e.runID,
				"node_id", o.nodeID,
				"status", o.status,
			)
		case <-wake:
		case <-cancelC:
		}
	}

	result := e.buildResult(g, st, startTime, cancelled)

	e.logger.InfoContext(ctx, "graph execution finished",
		"run_id", e.runID,
		"graph_id", g.ID,
		"succeeded", result.NodesSucceeded,
		"failed", result.NodesFailed,
		"skipped", result.NodesSkipped,
		"duration", result.Duration,
	)

	if cancelled {
		return result, types.WrapError(types.RUN_CANCELLED, "graph execution cancelled", ctx.Err())
	}
	return result, nil
}

// subscribeInputs opens one blackboard subscription per distinct declared
// input ref and coalesces notifications into a single wake channel, so the
// dispatch loop suspends instead of busy-polling while artifacts are pending.
func (e *Executor) subscribeInputs(ctx context.Context, g *graph.TaskGraph) <-chan struct{} {
	wake := make(chan struct{}, 1)

	seen := make(map[blackboard.Ref]struct{})
	for _, id := range g.NodeIDs() {
		for _, input := range g.Nodes[id].DeclaredInputs {
			if _, dup := seen[input]; dup {
				continue
			}
			seen[input] = struct{}{}

			ch, _ := e.store.Subscribe(ctx, input)
			go func() {
				for range ch {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			}()
		}
	}
	return wake
}

func (e *Executor) buildResult(g *graph.TaskGraph, st *state, startTime time.Time, cancelled bool) *Result {
	statuses := st.statuses()

	result := &Result{
		GraphID:      g.ID,
		NodeStatuses: statuses,
		Cancelled:    cancelled,
		Duration:     time.Since(startTime),
	}
	for _, status := range statuses {
		switch status {
		case graph.NodeStatusSucceeded:
			result.NodesSucceeded++
		case graph.NodeStatusFailed:
			result.NodesFailed++
		case graph.NodeStatusSkipped:
			result.NodesSkipped++
		case graph.NodeStatusCancelled:
			result.NodesCancelled++
		}
	}
	return result
}

func (e *Executor) publishTransition(tr Transition) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(context.Background(), events.Event{
		Type:  events.EventNodeStateChanged,
		RunID: e.runID,
		Payload: events.NodeStateChangedPayload{
			NodeID:        tr.NodeID,
			Capability:    tr.Capability,
			From:          tr.From.String(),
			To:            tr.To.String(),
			Attempt:       tr.Attempt,
			RevisionGroup: tr.RevisionGroup,
			Reason:        tr.Reason,
		},
	})
}
