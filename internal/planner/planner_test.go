package planner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/capability"
	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/review"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

func documentSeeds() []blackboard.Ref {
	return []blackboard.Ref{{Kind: capability.KindRawDocument, Key: SeedDocumentKey}}
}

func TestPlanDefaultPipeline(t *testing.T) {
	p := New(types.NewID())

	g, err := p.Plan(context.Background(), &DocumentProfile{DocKind: "generic"}, documentSeeds())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"parse", "explain", "narrate", "brief"}, g.NodeIDs())
	assert.Nil(t, g.GetNode("timeline"))
	assert.Equal(t, []string{"brief"}, g.CheckpointNodes())

	// Edges are derived from declared kinds, never wired by hand.
	dependents := g.TransitiveDependents("explain")
	assert.Contains(t, dependents, "narrate")
	assert.Contains(t, dependents, "brief")
	assert.NotContains(t, dependents, "parse")
}

func TestPlanWithHistoricalContext(t *testing.T) {
	p := New(types.NewID())

	g, err := p.Plan(context.Background(), &DocumentProfile{HasHistoricalContext: true}, documentSeeds())
	require.NoError(t, err)

	timeline := g.GetNode("timeline")
	require.NotNil(t, timeline)
	assert.True(t, timeline.Optional)

	narrate := g.GetNode("narrate")
	require.NotNil(t, narrate)
	assert.True(t, narrate.ConsumesKind(capability.KindTimeline))
}

func TestPlanFailsWithoutSeed(t *testing.T) {
	p := New(types.NewID())

	_, err := p.Plan(context.Background(), &DocumentProfile{}, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.PLAN_MISSING_DEPENDENCY))
}

func TestPlanPublishesEvent(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(context.Background(), events.EventPlanCreated)
	defer cancel()

	p := New(types.NewID(), WithEventBus(bus))
	_, err := p.Plan(context.Background(), &DocumentProfile{}, documentSeeds())
	require.NoError(t, err)

	select {
	case ev := <-ch:
		payload, ok := ev.Payload.(events.PlanCreatedPayload)
		require.True(t, ok)
		assert.Equal(t, 0, payload.ReplanIndex)
		assert.ElementsMatch(t, []string{"parse", "explain", "narrate", "brief"}, payload.NodeIDs)
	case <-time.After(5 * time.Second):
		t.Fatal("no plan.created event published")
	}
}

// threeNodeStrategy is a producer chain with an independent bystander:
// upstream writes x, downstream consumes x, bystander consumes neither.
func threeNodeStrategy() Strategy {
	return StrategyFunc(func(*DocumentProfile) []*graph.TaskNode {
		return []*graph.TaskNode{
			{
				ID:              "upstream",
				Capability:      "up",
				DeclaredInputs:  []blackboard.Ref{{Kind: "seed", Key: "s"}},
				DeclaredOutputs: []string{"x"},
			},
			{
				ID:              "downstream",
				Capability:      "down",
				DeclaredInputs:  []blackboard.Ref{{Kind: "x", Key: blackboard.WildcardKey}},
				DeclaredOutputs: []string{"y"},
			},
			{
				ID:              "bystander",
				Capability:      "side",
				DeclaredInputs:  []blackboard.Ref{{Kind: "seed", Key: "s"}},
				DeclaredOutputs: []string{"z"},
			},
		}
	})
}

func plannedChain(t *testing.T, p *Planner) *graph.TaskGraph {
	t.Helper()
	g, err := p.Plan(context.Background(), &DocumentProfile{}, []blackboard.Ref{{Kind: "seed", Key: "s"}})
	require.NoError(t, err)
	for _, node := range g.Nodes {
		node.Status = graph.NodeStatusSucceeded
	}
	return g
}

func TestReplanResetsForwardClosureOnly(t *testing.T) {
	p := New(types.NewID(), WithStrategy(threeNodeStrategy()))
	prior := plannedChain(t, p)

	report := &review.Report{
		Verdict:            review.VerdictDeficient,
		DeficientArtifacts: []blackboard.Ref{{Kind: "x", Key: "upstream"}},
	}

	next, event, err := p.Replan(context.Background(), prior, report)
	require.NoError(t, err)
	require.NotNil(t, next)

	assert.Equal(t, 1, event.ReplanIndex)
	assert.Equal(t, []string{"downstream", "upstream"}, event.AffectedSubgraph)
	assert.Equal(t, 1, next.ReplanIndex)

	for _, id := range []string{"upstream", "downstream"} {
		node := next.GetNode(id)
		assert.Equal(t, graph.NodeStatusPending, node.Status, id)
		assert.Equal(t, 0, node.Attempt, id)
		assert.Equal(t, 2, node.RevisionGroup, id)
	}

	bystander := next.GetNode("bystander")
	assert.Equal(t, graph.NodeStatusSucceeded, bystander.Status)
	assert.Equal(t, 1, bystander.RevisionGroup)

	// The prior graph is untouched.
	assert.Equal(t, graph.NodeStatusSucceeded, prior.GetNode("upstream").Status)
	assert.Equal(t, 1, prior.GetNode("upstream").RevisionGroup)
}

func TestReplanKeySelectsExactProducer(t *testing.T) {
	strategy := StrategyFunc(func(*DocumentProfile) []*graph.TaskNode {
		return []*graph.TaskNode{
			{
				ID:              "writer-a",
				Capability:      "up",
				DeclaredInputs:  []blackboard.Ref{{Kind: "seed", Key: "s"}},
				DeclaredOutputs: []string{"x"},
			},
			{
				ID:              "writer-b",
				Capability:      "up",
				DeclaredInputs:  []blackboard.Ref{{Kind: "seed", Key: "s"}},
				DeclaredOutputs: []string{"x"},
			},
		}
	})

	p := New(types.NewID(), WithStrategy(strategy))
	prior := plannedChain(t, p)

	report := &review.Report{
		Verdict:            review.VerdictDeficient,
		DeficientArtifacts: []blackboard.Ref{{Kind: "x", Key: "writer-b"}},
	}
	next, event, err := p.Replan(context.Background(), prior, report)
	require.NoError(t, err)

	assert.Equal(t, []string{"writer-b"}, event.AffectedSubgraph)
	assert.Equal(t, graph.NodeStatusSucceeded, next.GetNode("writer-a").Status)

	// A wildcard key implicates every producer of the kind.
	report = &review.Report{
		Verdict:            review.VerdictDeficient,
		DeficientArtifacts: []blackboard.Ref{{Kind: "x", Key: blackboard.WildcardKey}},
	}
	_, event, err = p.Replan(context.Background(), next, report)
	require.NoError(t, err)
	assert.Equal(t, []string{"writer-a", "writer-b"}, event.AffectedSubgraph)
}

func TestReplanBudgetExhausted(t *testing.T) {
	p := New(types.NewID(), WithStrategy(threeNodeStrategy()), WithMaxReplans(1))
	prior := plannedChain(t, p)

	report := &review.Report{
		Verdict:            review.VerdictDeficient,
		DeficientArtifacts: []blackboard.Ref{{Kind: "x", Key: blackboard.WildcardKey}},
	}

	next, _, err := p.Replan(context.Background(), prior, report)
	require.NoError(t, err)
	assert.Equal(t, 1, p.ReplanIndex())

	_, _, err = p.Replan(context.Background(), next, report)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReplanBudgetExhausted)
	assert.True(t, types.IsCode(err, types.REPLAN_BUDGET_EXHAUSTED))
	assert.Equal(t, 1, p.ReplanIndex())
}

func TestReplanRequiresDeficientReport(t *testing.T) {
	p := New(types.NewID(), WithStrategy(threeNodeStrategy()))
	prior := plannedChain(t, p)

	_, _, err := p.Replan(context.Background(), prior, nil)
	assert.Error(t, err)

	_, _, err = p.Replan(context.Background(), prior, &review.Report{Verdict: review.VerdictApproved})
	assert.Error(t, err)
}

func TestReplanUnknownKindFails(t *testing.T) {
	p := New(types.NewID(), WithStrategy(threeNodeStrategy()))
	prior := plannedChain(t, p)

	report := &review.Report{
		Verdict:            review.VerdictDeficient,
		DeficientArtifacts: []blackboard.Ref{{Kind: "nonexistent", Key: blackboard.WildcardKey}},
	}
	_, _, err := p.Replan(context.Background(), prior, report)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.PLAN_INVALID_GRAPH))
}

func TestReplanPublishesEvents(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(context.Background(),
		events.EventReplanTriggered, events.EventPlanCreated)
	defer cancel()

	p := New(types.NewID(), WithStrategy(threeNodeStrategy()), WithEventBus(bus))
	prior := plannedChain(t, p)

	// plannedChain published the initial plan.created.
	first := <-ch
	require.Equal(t, events.EventPlanCreated, first.Type)

	report := &review.Report{
		Verdict:            review.VerdictDeficient,
		DeficientArtifacts: []blackboard.Ref{{Kind: "x", Key: blackboard.WildcardKey}},
	}
	_, _, err := p.Replan(context.Background(), prior, report)
	require.NoError(t, err)

	replanEv := <-ch
	require.Equal(t, events.EventReplanTriggered, replanEv.Type)
	payload, ok := replanEv.Payload.(events.ReplanTriggeredPayload)
	require.True(t, ok)
	assert.Equal(t, 1, payload.ReplanIndex)
	assert.Equal(t, []string{"downstream", "upstream"}, payload.AffectedNodeIDs)

	planEv := <-ch
	require.Equal(t, events.EventPlanCreated, planEv.Type)
	planPayload, ok := planEv.Payload.(events.PlanCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, 1, planPayload.ReplanIndex)
}

func TestHeuristicClassifier(t *testing.T) {
	classify := func(t *testing.T, text string) *DocumentProfile {
		t.Helper()
		profile, err := HeuristicClassifier().Classify(context.Background(), []byte(text))
		require.NoError(t, err)
		return profile
	}

	t.Run("short generic document", func(t *testing.T) {
		profile := classify(t, "A short note about nothing in particular.")
		assert.Equal(t, "generic", profile.DocKind)
		assert.Equal(t, "short", profile.LengthClass)
		assert.Equal(t, "en", profile.Language)
		assert.False(t, profile.HasHistoricalContext)
	})

	t.Run("legal markers", func(t *testing.T) {
		profile := classify(t, "WHEREAS the parties agree, hereinafter the Vendor...")
		assert.Equal(t, "legal", profile.DocKind)
	})

	t.Run("policy markers", func(t *testing.T) {
		profile := classify(t, "This regulation amends the earlier directive.")
		assert.Equal(t, "policy", profile.DocKind)
	})

	t.Run("length classes", func(t *testing.T) {
		medium := classify(t, strings.Repeat("word ", 1000))
		assert.Equal(t, "medium", medium.LengthClass)

		long := classify(t, strings.Repeat("word ", 5000))
		assert.Equal(t, "long", long.LengthClass)
	})

	t.Run("historical context needs three year references", func(t *testing.T) {
		two := classify(t, "Signed in 1990 and amended in 2005.")
		assert.False(t, two.HasHistoricalContext)

		three := classify(t, "Signed in 1990, amended in 2005, repealed in 2019.")
		assert.True(t, three.HasHistoricalContext)
	})
}
