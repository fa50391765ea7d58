package planner

import (
	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/capability"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
)

// Strategy selects the capability invocations for a document profile.
// The planner derives dependency edges structurally from what the selected
// nodes declare; strategies never wire edges by hand.
type Strategy interface {
	Select(profile *DocumentProfile) []*graph.TaskNode
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc func(profile *DocumentProfile) []*graph.TaskNode

// Select implements Strategy.
func (f StrategyFunc) Select(profile *DocumentProfile) []*graph.TaskNode {
	return f(profile)
}

// SeedDocumentKey is the blackboard key the run seeds the raw document under.
const SeedDocumentKey = "document"

// DefaultStrategy returns the public-translation pipeline shape:
//
//	parse -> explain -> [timeline] -> narrate -> brief
//
// The timeline node is selected only when the profile indicates historical
// context. The brief node is the review checkpoint.
func DefaultStrategy() Strategy {
	return StrategyFunc(func(profile *DocumentProfile) []*graph.TaskNode {
		nodes := []*graph.TaskNode{
			{
				ID:         "parse",
				Capability: capability.CapabilityParse,
				DeclaredInputs: []blackboard.Ref{
					{Kind: capability.KindRawDocument, Key: SeedDocumentKey},
				},
				DeclaredOutputs: []string{capability.KindBlocks},
			},
			{
				ID:         "explain",
				Capability: capability.CapabilityExplain,
				DeclaredInputs: []blackboard.Ref{
					{Kind: capability.KindBlocks, Key: blackboard.WildcardKey},
				},
				DeclaredOutputs: []string{capability.KindExplanation},
			},
			{
				ID:         "narrate",
				Capability: capability.CapabilityNarrate,
				DeclaredInputs: []blackboard.Ref{
					{Kind: capability.KindExplanation, Key: blackboard.WildcardKey},
				},
				DeclaredOutputs: []string{capability.KindNarrative},
			},
			{
				ID:         "brief",
				Capability: capability.CapabilityBrief,
				DeclaredInputs: []blackboard.Ref{
					{Kind: capability.KindNarrative, Key: blackboard.WildcardKey},
					{Kind: capability.KindExplanation, Key: blackboard.WildcardKey},
				},
				DeclaredOutputs: []string{capability.KindPublicBrief},
				Checkpoint:      true,
			},
		}

		if profile != nil && profile.HasHistoricalContext {
			timeline := &graph.TaskNode{
				ID:         "timeline",
				Capability: capability.CapabilityTimeline,
				DeclaredInputs: []blackboard.Ref{
					{Kind: capability.KindBlocks, Key: blackboard.WildcardKey},
				},
				DeclaredOutputs: []string{capability.KindTimeline},
				Optional:        true,
			}
			nodes = append(nodes, timeline)

			// With history enabled the narrative also consumes the timeline.
			for _, n := range nodes {
				if n.ID == "narrate" {
					n.DeclaredInputs = append(n.DeclaredInputs,
						blackboard.Ref{Kind: capability.KindTimeline, Key: blackboard.WildcardKey})
				}
			}
		}

		return nodes
	})
}
