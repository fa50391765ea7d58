package graph

import (
	"fmt"
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// Builder constructs task graphs with a fluent interface.
// Edges are derived from the declared inputs and outputs at Build time, never
// added by hand.
type Builder struct {
	nodes []*TaskNode
	errs  []error
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNode adds a fully specified node to the graph under construction.
func (b *Builder) AddNode(node *TaskNode) *Builder {
	if node == nil {
		b.errs = append(b.errs, fmt.Errorf("node cannot be nil"))
		return b
	}
	if node.ID == "" {
		b.errs = append(b.errs, fmt.Errorf("node ID cannot be empty"))
		return b
	}
	if node.Capability == "" {
		b.errs = append(b.errs, fmt.Errorf("node %q: capability cannot be empty", node.ID))
		return b
	}
	for _, existing := range b.nodes {
		if existing.ID == node.ID {
			b.errs = append(b.errs, fmt.Errorf("duplicate node ID %q", node.ID))
			return b
		}
	}
	b.nodes = append(b.nodes, node)
	return b
}

// AddCapabilityNode adds a node invoking the named capability with the given
// declared inputs and output kinds.
func (b *Builder) AddCapabilityNode(id, capability string, inputs []blackboard.Ref, outputs []string) *Builder {
	return b.AddNode(&TaskNode{
		ID:              id,
		Capability:      capability,
		DeclaredInputs:  inputs,
		DeclaredOutputs: outputs,
		Status:          NodeStatusPending,
	})
}

// Build assembles and returns the task graph. All nodes start Pending with
// revision group 1; structural validation is the planner's responsibility so
// that seed artifacts can be taken into account.
func (b *Builder) Build() (*TaskGraph, error) {
	if len(b.errs) > 0 {
		return nil, types.WrapError(types.PLAN_INVALID_GRAPH, "graph construction failed", b.errs[0])
	}
	if len(b.nodes) == 0 {
		return nil, types.NewError(types.PLAN_INVALID_GRAPH, "graph must contain at least one node")
	}

	nodes := make(map[string]*TaskNode, len(b.nodes))
	for _, node := range b.nodes {
		n := node.Clone()
		if n.Status == "" {
			n.Status = NodeStatusPending
		}
		if n.RevisionGroup == 0 {
			n.RevisionGroup = 1
		}
		nodes[n.ID] = n
	}

	g := &TaskGraph{
		ID:        types.NewID(),
		Nodes:     nodes,
		CreatedAt: time.Now().UTC(),
	}
	g.deriveEdges()
	return g, nil
}
