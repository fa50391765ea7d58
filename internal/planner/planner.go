// Package planner builds the initial task graph from a document profile and
// computes minimal delta-subgraphs when a review verdict demands rework.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/review"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// DefaultMaxReplans bounds the self-correction cycle.
const DefaultMaxReplans = 3

// ErrReplanBudgetExhausted is the reported condition returned when one more
// replan would exceed the budget. It is not a fatal error: the run finishes
// with the best available artifacts as a partial success.
var ErrReplanBudgetExhausted = types.NewError(types.REPLAN_BUDGET_EXHAUSTED, "replan budget exhausted")

// ReplanEvent describes one accepted replan decision.
type ReplanEvent struct {
	// TriggeringReport is the deficient review verdict.
	TriggeringReport *review.Report

	// AffectedSubgraph holds the IDs of the delta nodes, sorted.
	AffectedSubgraph []string

	// ReplanIndex is the 1-based ordinal of this replan.
	ReplanIndex int
}

// Planner is run-scoped: it owns the replan counter for exactly one run.
type Planner struct {
	runID      types.ID
	strategy   Strategy
	validator  *graph.Validator
	maxReplans int
	replans    int
	bus        events.Bus
	logger     *slog.Logger
}

// Option is a functional option for configuring a Planner.
type Option func(*Planner)

// WithStrategy overrides the capability-selection strategy.
func WithStrategy(s Strategy) Option {
	return func(p *Planner) {
		p.strategy = s
	}
}

// WithMaxReplans overrides the replan budget.
func WithMaxReplans(n int) Option {
	return func(p *Planner) {
		if n >= 0 {
			p.maxReplans = n
		}
	}
}

// WithEventBus configures the bus the planner publishes plan transitions to.
func WithEventBus(bus events.Bus) Option {
	return func(p *Planner) {
		p.bus = bus
	}
}

// WithLogger configures the planner's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// New creates a planner for a single run.
func New(runID types.ID, opts ...Option) *Planner {
	p := &Planner{
		runID:      runID,
		strategy:   DefaultStrategy(),
		validator:  graph.NewValidator(),
		maxReplans: DefaultMaxReplans,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxReplans returns the configured replan budget.
func (p *Planner) MaxReplans() int { return p.maxReplans }

// ReplanIndex returns the number of replans accepted so far.
func (p *Planner) ReplanIndex() int { return p.replans }

// Plan selects capability invocations for the profile, derives the dependency
// graph structurally, and validates it. Planning fails atomically: no partial
// graph is ever handed to the scheduler.
func (p *Planner) Plan(ctx context.Context, profile *DocumentProfile, seeds []blackboard.Ref) (*graph.TaskGraph, error) {
	builder := graph.NewBuilder()
	for _, node := range p.strategy.Select(profile) {
		builder.AddNode(node)
	}

	g, err := builder.Build()
	if err != nil {
		return nil, err
	}

	if err := p.validator.Validate(g, seeds); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "plan created",
		"run_id", p.runID,
		"graph_id", g.ID,
		"node_count", len(g.Nodes),
	)
	p.publishPlan(ctx, g)

	return g, nil
}

// Replan computes the delta-subgraph demanded by a deficient review report:
// the nodes whose outputs are named deficient, plus the full forward closure
// of their consumers. Nodes outside the closure keep their prior succeeded
// status and their artifacts are reused unchanged. Every delta node gets a
// fresh revision group so its next successful write lands as a new blackboard
// revision.
//
// Once one more replan would exceed the budget, Replan returns
// ErrReplanBudgetExhausted and no graph.
func (p *Planner) Replan(ctx context.Context, prior *graph.TaskGraph, report *review.Report) (*graph.TaskGraph, *ReplanEvent, error) {
	if report == nil || report.Approved() {
		return nil, nil, types.NewError(types.PLAN_INVALID_GRAPH, "replan requires a deficient review report")
	}

	if p.replans+1 > p.maxReplans {
		p.logger.WarnContext(ctx, "replan budget exhausted",
			"run_id", p.runID,
			"max_replans", p.maxReplans,
		)
		return nil, nil, ErrReplanBudgetExhausted
	}

	producers := p.deficientProducers(prior, report.DeficientArtifacts)
	if len(producers) == 0 {
		return nil, nil, types.NewError(types.PLAN_INVALID_GRAPH,
			fmt.Sprintf("no node in the graph produces any deficient artifact: %v", report.DeficientArtifacts))
	}

	delta := make(map[string]struct{}, len(producers))
	for _, id := range producers {
		delta[id] = struct{}{}
	}
	for id := range prior.TransitiveDependents(producers...) {
		delta[id] = struct{}{}
	}

	p.replans++

	next := prior.Clone()
	next.ReplanIndex = p.replans
	next.CreatedAt = time.Now().UTC()
	for id := range delta {
		node := next.Nodes[id]
		node.Status = graph.NodeStatusPending
		node.Attempt = 0
		node.RevisionGroup++
	}

	affected := make([]string, 0, len(delta))
	for id := range delta {
		affected = append(affected, id)
	}
	sort.Strings(affected)

	event := &ReplanEvent{
		TriggeringReport: report,
		AffectedSubgraph: affected,
		ReplanIndex:      p.replans,
	}

	p.logger.InfoContext(ctx, "replan accepted",
		"run_id", p.runID,
		"replan_index", p.replans,
		"affected_nodes", affected,
	)
	p.publishReplan(ctx, report, event)
	p.publishPlan(ctx, next)

	return next, event, nil
}

// deficientProducers maps deficient artifact refs back to graph nodes. A ref
// whose key names a node ID selects that producer exactly; otherwise every
// producer of the kind is implicated.
func (p *Planner) deficientProducers(g *graph.TaskGraph, refs []blackboard.Ref) []string {
	set := make(map[string]struct{})
	for _, ref := range refs {
		producers := g.ProducersOfKind(ref.Kind)
		matched := false
		for _, id := range producers {
			if id == ref.Key {
				set[id] = struct{}{}
				matched = true
			}
		}
		if !matched {
			for _, id := range producers {
				set[id] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Planner) publishPlan(ctx context.Context, g *graph.TaskGraph) {
	if p.bus == nil {
		return
	}
	_ = p.bus.Publish(ctx, events.Event{
		Type:  events.EventPlanCreated,
		RunID: p.runID,
		Payload: events.PlanCreatedPayload{
			GraphID:     g.ID,
			NodeIDs:     g.NodeIDs(),
			ReplanIndex: g.ReplanIndex,
		},
	})
}

func (p *Planner) publishReplan(ctx context.Context, report *review.Report, event *ReplanEvent) {
	if p.bus == nil {
		return
	}
	refs := make([]string, len(report.DeficientArtifacts))
	for i, ref := range report.DeficientArtifacts {
		refs[i] = ref.String()
	}
	_ = p.bus.Publish(ctx, events.Event{
		Type:  events.EventReplanTriggered,
		RunID: p.runID,
		Payload: events.ReplanTriggeredPayload{
			ReplanIndex:        event.ReplanIndex,
			AffectedNodeIDs:    event.AffectedSubgraph,
			DeficientArtifacts: refs,
		},
	})
}
