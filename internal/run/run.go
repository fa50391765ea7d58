// Package run drives a single document run end to end: classify, plan,
// execute, review, and replan until the verdict is approved or the replan
// budget runs out. All state it creates, the blackboard, the event bus, and
// the trace file, is scoped to the run.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/capability"
	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/planner"
	"github.com/Jalkey-Chen/InterLines/internal/review"
	"github.com/Jalkey-Chen/InterLines/internal/scheduler"
	"github.com/Jalkey-Chen/InterLines/internal/trace"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// SeedProducedBy is the provenance marker for artifacts committed before the
// scheduler starts.
const SeedProducedBy = "seed"

// Runner executes document runs. A single Runner is safe for concurrent use;
// every Execute call builds its own run-scoped state.
type Runner struct {
	registry   *capability.Registry
	reviewer   review.Capability
	classifier planner.Classifier
	strategy   planner.Strategy
	logger     *slog.Logger
	tracer     oteltrace.Tracer

	maxWorkers  int
	maxReplans  int
	nodeTimeout time.Duration
	retryPolicy *graph.RetryPolicy
	traceDir    string
}

// Option configures a Runner.
type Option func(*Runner)

// WithReviewer sets the review capability invoked at checkpoints. Without
// one, checkpoint verdicts default to approved.
func WithReviewer(reviewer review.Capability) Option {
	return func(r *Runner) { r.reviewer = reviewer }
}

// WithClassifier sets the document classifier.
func WithClassifier(c planner.Classifier) Option {
	return func(r *Runner) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithStrategy sets the planning strategy.
func WithStrategy(s planner.Strategy) Option {
	return func(r *Runner) {
		if s != nil {
			r.strategy = s
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets an OpenTelemetry tracer for run spans.
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithMaxWorkers bounds concurrent node execution.
func WithMaxWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxWorkers = n
		}
	}
}

// WithMaxReplans bounds review-driven replans per run.
func WithMaxReplans(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.maxReplans = n
		}
	}
}

// WithNodeTimeout sets the per-attempt timeout applied to planned nodes that
// declare none.
func WithNodeTimeout(d time.Duration) Option {
	return func(r *Runner) { r.nodeTimeout = d }
}

// WithRetryPolicy sets the retry policy applied to planned nodes that declare
// none.
func WithRetryPolicy(p *graph.RetryPolicy) Option {
	return func(r *Runner) { r.retryPolicy = p }
}

// WithTraceDir enables trace recording under the given directory. Empty
// disables recording.
func WithTraceDir(dir string) Option {
	return func(r *Runner) { r.traceDir = dir }
}

// NewRunner creates a Runner around a capability registry.
func NewRunner(registry *capability.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry:   registry,
		classifier: planner.HeuristicClassifier(),
		strategy:   planner.DefaultStrategy(),
		logger:     slog.Default(),
		maxWorkers: scheduler.DefaultMaxWorkers,
		maxReplans: planner.DefaultMaxReplans,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs one document through the full pipeline and returns the run
// result. The context cancels the whole run; cancellation yields a result
// with RunStatusCancelled, not an error.
func (r *Runner) Execute(ctx context.Context, document []byte) (*Result, error) {
	runID := types.NewID()
	startedAt := time.Now()
	logger := r.logger

	if r.tracer != nil {
		var span oteltrace.Span
		ctx, span = r.tracer.Start(ctx, "run.execute",
			oteltrace.WithAttributes(attribute.String("run.id", runID.String())),
		)
		defer span.End()
	}

	bus := events.NewBus()
	store := blackboard.NewStore()

	var recorder *trace.Recorder
	tracePath := ""
	if r.traceDir != "" {
		recorder = trace.NewRecorder(r.traceDir, trace.WithLogger(logger))
		path, err := recorder.Start(ctx, bus, runID)
		if err != nil {
			return nil, err
		}
		tracePath = path
	}
	finish := func() {
		_ = bus.Close()
		if recorder != nil {
			if err := recorder.Close(); err != nil {
				logger.Warn("trace incomplete", "path", tracePath, "error", err)
			}
		}
	}
	defer finish()

	profile, err := r.classifier.Classify(ctx, document)
	if err != nil {
		return nil, types.WrapError(types.AGENT_EXECUTION_FAILED, "document classification failed", err)
	}
	logger.Info("document classified",
		"run_id", runID,
		"doc_kind", profile.DocKind,
		"length_class", profile.LengthClass,
		"historical_context", profile.HasHistoricalContext,
	)

	seeds, err := r.seedDocument(ctx, runID, bus, store, document)
	if err != nil {
		return nil, err
	}

	pl := planner.New(runID,
		planner.WithStrategy(r.strategy),
		planner.WithMaxReplans(r.maxReplans),
		planner.WithEventBus(bus),
		planner.WithLogger(logger),
	)

	g, err := pl.Plan(ctx, profile, seeds)
	if err != nil {
		return nil, err
	}
	r.applyNodeDefaults(g)

	result := &Result{
		RunID:     runID,
		Profile:   profile,
		Store:     store,
		TracePath: tracePath,
		StartedAt: startedAt,
	}

	status, runErr := r.executeLoop(ctx, logger, bus, store, pl, g, result)
	result.Status = status
	result.Duration = time.Since(startedAt)

	switch status {
	case types.RunStatusCancelled:
		_ = bus.Publish(ctx, events.Event{
			Type:    events.EventRunCancelled,
			RunID:   runID,
			Payload: events.RunCancelledPayload{Reason: cancelReason(ctx)},
		})
	default:
		_ = bus.Publish(ctx, events.Event{
			Type:    events.EventRunCompleted,
			RunID:   runID,
			Payload: events.RunCompletedPayload{Status: string(status)},
		})
	}

	logger.Info("run finished",
		"run_id", runID,
		"status", status,
		"replans", result.Replans,
		"duration", result.Duration,
	)
	return result, runErr
}

// executeLoop is the plan/execute/review/replan cycle.
func (r *Runner) executeLoop(
	ctx context.Context,
	logger *slog.Logger,
	bus events.Bus,
	store *blackboard.Store,
	pl *planner.Planner,
	g *graph.TaskGraph,
	result *Result,
) (types.RunStatus, error) {
	for {
		exec := scheduler.NewExecutor(result.RunID, store, r.registry,
			scheduler.WithLogger(logger),
			scheduler.WithEventBus(bus),
			scheduler.WithMaxWorkers(r.maxWorkers),
			scheduler.WithTracer(r.tracer),
		)

		pass, err := exec.Execute(ctx, g)
		if pass != nil {
			result.NodeStatuses = pass.NodeStatuses
			result.Graph = g
		}
		if (pass != nil && pass.Cancelled) || types.IsCode(err, types.RUN_CANCELLED) {
			return types.RunStatusCancelled, nil
		}
		if err != nil {
			return types.RunStatusFailed, err
		}
		if ctx.Err() != nil {
			return types.RunStatusCancelled, nil
		}
		if pass.FailedNonOptional(g) {
			return types.RunStatusFailed, nil
		}

		report, err := r.evaluate(ctx, result.RunID, bus, store, g)
		if err != nil {
			return types.RunStatusFailed, err
		}
		if report.Approved() {
			return types.RunStatusSucceeded, nil
		}

		next, replan, err := pl.Replan(ctx, g, report)
		if err != nil {
			if errors.Is(err, planner.ErrReplanBudgetExhausted) {
				logger.Warn("replan budget exhausted, finishing with current artifacts",
					"run_id", result.RunID,
					"replans", result.Replans,
				)
				return types.RunStatusPartialSuccess, nil
			}
			return types.RunStatusFailed, err
		}

		result.Replans = replan.ReplanIndex
		r.applyNodeDefaults(next)
		g = next
	}
}

// evaluate runs the review gate; without a reviewer, or on a graph with no
// checkpoint nodes, the pass is approved as-is.
func (r *Runner) evaluate(ctx context.Context, runID types.ID, bus events.Bus, store *blackboard.Store, g *graph.TaskGraph) (*review.Report, error) {
	if r.reviewer == nil || len(g.CheckpointNodes()) == 0 {
		return &review.Report{Verdict: review.VerdictApproved}, nil
	}
	gate := review.NewGate(r.reviewer,
		review.WithLogger(r.logger),
		review.WithEventBus(bus),
	)
	return gate.Evaluate(ctx, runID, store, g)
}

// seedDocument commits the raw document as revision 1 before planning, so
// the parse node's input is satisfied from the start. The commit is also
// published on the bus so a replayed trace reconstructs the seed revision.
func (r *Runner) seedDocument(ctx context.Context, runID types.ID, bus events.Bus, store *blackboard.Store, document []byte) ([]blackboard.Ref, error) {
	payload, err := json.Marshal(string(document))
	if err != nil {
		return nil, types.WrapError(types.SCHEMA_VALIDATION_FAILED, "cannot encode document payload", err)
	}

	artifact := &blackboard.Artifact{
		Kind:          capability.KindRawDocument,
		SchemaVersion: "1.0.0",
		Key:           planner.SeedDocumentKey,
		Revision:      1,
		Payload:       payload,
		Provenance: []blackboard.Provenance{{
			ProducedBy: SeedProducedBy,
			At:         time.Now().UTC(),
		}},
	}
	if err := store.Put(artifact); err != nil {
		return nil, err
	}
	_ = bus.Publish(ctx, events.Event{
		Type:  events.EventArtifactWritten,
		RunID: runID,
		Payload: events.ArtifactWrittenPayload{
			Kind:          artifact.Kind,
			Key:           artifact.Key,
			Revision:      artifact.Revision,
			SchemaVersion: artifact.SchemaVersion,
			ProducedBy:    SeedProducedBy,
			PayloadHash:   artifact.PayloadHash(),
			Payload:       artifact.Payload,
		},
	})
	return []blackboard.Ref{artifact.Ref()}, nil
}

// applyNodeDefaults stamps the runner's timeout and retry policy onto nodes
// that declare none.
func (r *Runner) applyNodeDefaults(g *graph.TaskGraph) {
	for _, node := range g.Nodes {
		if node.Timeout == 0 && r.nodeTimeout > 0 {
			node.Timeout = r.nodeTimeout
		}
		if node.RetryPolicy == nil && r.retryPolicy != nil {
			p := *r.retryPolicy
			node.RetryPolicy = &p
		}
	}
}

func cancelReason(ctx context.Context) string {
	if err := context.Cause(ctx); err != nil {
		return err.Error()
	}
	return ""
}
