package review

import (
	"context"
	"log/slog"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// Capability is the external review collaborator.
type Capability interface {
	// Review evaluates the checkpoint artifact set and returns a verdict.
	Review(ctx context.Context, artifacts []*blackboard.Artifact) (*Report, error)
}

// Gate invokes the review capability once all checkpoint nodes reach a
// terminal status and forwards the verdict. It holds no state beyond
// forwarding and fails fast if the reviewer itself errors: a broken reviewer
// cannot be second-guessed by the core.
type Gate struct {
	reviewer Capability
	bus      events.Bus
	logger   *slog.Logger
}

// GateOption is a functional option for configuring a Gate.
type GateOption func(*Gate)

// WithLogger configures the gate's structured logger.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithEventBus configures the bus the gate publishes review transitions to.
func WithEventBus(bus events.Bus) GateOption {
	return func(g *Gate) {
		g.bus = bus
	}
}

// NewGate creates a review gate around the given review capability.
func NewGate(reviewer Capability, opts ...GateOption) *Gate {
	g := &Gate{
		reviewer: reviewer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate collects the current revisions of every checkpoint node's declared
// output kinds, invokes the review capability over them, and returns the
// report.
func (g *Gate) Evaluate(ctx context.Context, runID types.ID, store *blackboard.Store, tg *graph.TaskGraph) (*Report, error) {
	artifacts := g.checkpointArtifacts(store, tg)

	g.logger.InfoContext(ctx, "invoking review capability",
		"run_id", runID,
		"artifact_count", len(artifacts),
	)

	report, err := g.reviewer.Review(ctx, artifacts)
	if err != nil {
		return nil, types.WrapError(types.REVIEW_FAILED, "review capability failed", err)
	}

	g.publish(ctx, runID, report)

	g.logger.InfoContext(ctx, "review verdict received",
		"run_id", runID,
		"verdict", report.Verdict,
		"deficient_count", len(report.DeficientArtifacts),
	)
	return report, nil
}

func (g *Gate) checkpointArtifacts(store *blackboard.Store, tg *graph.TaskGraph) []*blackboard.Artifact {
	var artifacts []*blackboard.Artifact
	seen := make(map[blackboard.Ref]struct{})

	for _, nodeID := range tg.CheckpointNodes() {
		node := tg.GetNode(nodeID)
		for _, kind := range node.DeclaredOutputs {
			for _, artifact := range store.LatestByKind(kind) {
				ref := artifact.Ref()
				if _, dup := seen[ref]; dup {
					continue
				}
				seen[ref] = struct{}{}
				artifacts = append(artifacts, artifact)
			}
		}
	}
	return artifacts
}

func (g *Gate) publish(ctx context.Context, runID types.ID, report *Report) {
	if g.bus == nil {
		return
	}

	refs := make([]string, len(report.DeficientArtifacts))
	for i, ref := range report.DeficientArtifacts {
		refs[i] = ref.String()
	}

	_ = g.bus.Publish(ctx, events.Event{
		Type:  events.EventReviewInvoked,
		RunID: runID,
		Payload: events.ReviewInvokedPayload{
			Verdict:            string(report.Verdict),
			DeficientArtifacts: refs,
			Detail:             report.Detail,
		},
	})
}

// Scripted is a review capability that returns a fixed sequence of reports,
// then keeps returning the last one. Used by tests and the CLI demo mode.
type Scripted struct {
	Reports []*Report
	next    int
}

// Review implements Capability.
func (s *Scripted) Review(_ context.Context, _ []*blackboard.Artifact) (*Report, error) {
	if len(s.Reports) == 0 {
		return &Report{Verdict: VerdictApproved}, nil
	}
	report := s.Reports[s.next]
	if s.next < len(s.Reports)-1 {
		s.next++
	}
	return report, nil
}
