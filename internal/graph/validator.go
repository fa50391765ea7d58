package graph

import (
	"fmt"
	"strings"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// Validator provides structural validation for task graphs.
// It is stateless: it can check for cycles, perform topological sorting, and
// report declared inputs without a structural producer.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs all structural checks on a graph and returns the first error
// encountered. Seed refs name artifacts already committed to the blackboard
// before execution starts; an input with neither a producer nor a seed is a
// fatal missing-dependency error.
func (v *Validator) Validate(g *TaskGraph, seeds []blackboard.Ref) error {
	if g == nil {
		return types.NewError(types.PLAN_INVALID_GRAPH, "graph cannot be nil")
	}
	if len(g.Nodes) == 0 {
		return types.NewError(types.PLAN_INVALID_GRAPH, "graph must contain at least one node")
	}

	if missing := v.UnproducedInputs(g, seeds); len(missing) > 0 {
		parts := make([]string, len(missing))
		for i, m := range missing {
			parts[i] = fmt.Sprintf("%s (consumed by %s)", m.Ref, m.NodeID)
		}
		return types.NewError(types.PLAN_MISSING_DEPENDENCY,
			fmt.Sprintf("declared inputs with no producer and no seed: %s", strings.Join(parts, ", ")))
	}

	cycle := v.DetectCycle(g)
	if len(cycle) > 0 {
		return types.NewError(types.PLAN_CYCLE_DETECTED,
			fmt.Sprintf("cycle detected in task graph: %s", strings.Join(cycle, " -> ")))
	}

	return nil
}

// MissingInput names a declared input that nothing in the graph produces.
type MissingInput struct {
	NodeID string
	Ref    blackboard.Ref
}

// UnproducedInputs returns every declared input whose kind no node produces
// and which no seed artifact satisfies, in deterministic order.
func (v *Validator) UnproducedInputs(g *TaskGraph, seeds []blackboard.Ref) []MissingInput {
	var missing []MissingInput
	for _, id := range g.NodeIDs() {
		node := g.Nodes[id]
		for _, input := range node.DeclaredInputs {
			if v.hasProducer(g, id, input.Kind) || seeded(seeds, input) {
				continue
			}
			missing = append(missing, MissingInput{NodeID: id, Ref: input})
		}
	}
	return missing
}

func (v *Validator) hasProducer(g *TaskGraph, consumerID, kind string) bool {
	for _, id := range g.NodeIDs() {
		if id != consumerID && g.Nodes[id].ProducesKind(kind) {
			return true
		}
	}
	return false
}

func seeded(seeds []blackboard.Ref, input blackboard.Ref) bool {
	for _, seed := range seeds {
		if input.Matches(seed) || seed.Matches(input) {
			return true
		}
	}
	return false
}

// DetectCycle uses depth-first search with color marking to detect cycles.
// Colors: white (0) = unvisited, gray (1) = on-stack, black (2) = done.
// Returns the implicated node cycle if found, otherwise an empty slice.
func (v *Validator) DetectCycle(g *TaskGraph) []string {
	if g == nil || len(g.Nodes) == 0 {
		return nil
	}

	color := make(map[string]int, len(g.Nodes))
	parent := make(map[string]string)

	var dfs func(nodeID string) []string
	dfs = func(nodeID string) []string {
		color[nodeID] = 1

		for _, neighbor := range g.Consumers(nodeID) {
			switch color[neighbor] {
			case 0:
				parent[neighbor] = nodeID
				if cycle := dfs(neighbor); cycle != nil {
					return cycle
				}
			case 1:
				// Back edge: reconstruct the on-stack path.
				cycle := []string{neighbor}
				current := nodeID
				for current != neighbor {
					cycle = append([]string{current}, cycle...)
					current = parent[current]
				}
				return append([]string{neighbor}, cycle...)
			}
		}

		color[nodeID] = 2
		return nil
	}

	for _, nodeID := range g.NodeIDs() {
		if color[nodeID] == 0 {
			if cycle := dfs(nodeID); cycle != nil {
				return cycle
			}
		}
	}

	return []string{}
}

// TopologicalSort orders node IDs using Kahn's algorithm.
// Returns an error if the graph contains a cycle.
func (v *Validator) TopologicalSort(g *TaskGraph) ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, id := range g.NodeIDs() {
		inDegree[id] = len(g.Producers(id))
	}

	var queue []string
	for _, id := range g.NodeIDs() {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, consumer := range g.Consumers(id) {
			inDegree[consumer]--
			if inDegree[consumer] == 0 {
				queue = append(queue, consumer)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, types.NewError(types.PLAN_CYCLE_DETECTED, "task graph contains a cycle")
	}

	return order, nil
}
