// Package graph defines the task graph: a directed acyclic graph of declared
// capability invocations whose dependency edges are derived structurally from
// the nodes' declared input and output artifact kinds.
package graph

import (
	"sort"
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// TaskGraph is the DAG describing one plan (or replan delta) of a run.
//
// Edges are never declared by hand: an edge from producer P to consumer C
// exists iff some declared output kind of P matches a declared input of C.
// A graph is replaced, not mutated, on replan; the prior graph is retained
// for audit via the trace.
type TaskGraph struct {
	// ID is the unique identifier of this graph instance.
	ID types.ID `json:"id"`

	// Nodes contains all nodes, indexed by node ID.
	Nodes map[string]*TaskNode `json:"nodes"`

	// ReplanIndex is 0 for the initial plan and the 1-based replan ordinal
	// for delta graphs.
	ReplanIndex int `json:"replan_index"`

	// CreatedAt is the timestamp when the graph was built.
	CreatedAt time.Time `json:"created_at"`

	// edges maps producer node ID to consumer node IDs, derived at build
	// time and ordered deterministically.
	edges map[string][]string

	// revEdges maps consumer node ID to producer node IDs.
	revEdges map[string][]string
}

// GetNode retrieves a node by its ID. Returns nil if not found.
func (g *TaskGraph) GetNode(id string) *TaskNode {
	if g.Nodes == nil {
		return nil
	}
	return g.Nodes[id]
}

// NodeIDs returns all node IDs sorted for deterministic iteration.
func (g *TaskGraph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Consumers returns the IDs of nodes that consume any output of the given
// node, in deterministic order.
func (g *TaskGraph) Consumers(id string) []string {
	return g.edges[id]
}

// Producers returns the IDs of nodes that produce any declared input of the
// given node, in deterministic order.
func (g *TaskGraph) Producers(id string) []string {
	return g.revEdges[id]
}

// ProducersOfKind returns the IDs of nodes declaring the given output kind.
func (g *TaskGraph) ProducersOfKind(kind string) []string {
	var out []string
	for _, id := range g.NodeIDs() {
		if g.Nodes[id].ProducesKind(kind) {
			out = append(out, id)
		}
	}
	return out
}

// CheckpointNodes returns the IDs of nodes designated as review checkpoints,
// in deterministic order.
func (g *TaskGraph) CheckpointNodes() []string {
	var out []string
	for _, id := range g.NodeIDs() {
		if g.Nodes[id].Checkpoint {
			out = append(out, id)
		}
	}
	return out
}

// TransitiveDependents returns the set of node IDs reachable from any of the
// given seed nodes over forward dependency edges, excluding the seeds
// themselves. Used for skip propagation and the replan forward closure.
func (g *TaskGraph) TransitiveDependents(seeds ...string) map[string]struct{} {
	visited := make(map[string]struct{})
	stack := append([]string(nil), seeds...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, consumer := range g.edges[id] {
			if _, seen := visited[consumer]; seen {
				continue
			}
			visited[consumer] = struct{}{}
			stack = append(stack, consumer)
		}
	}
	for _, seed := range seeds {
		delete(visited, seed)
	}
	return visited
}

// Clone returns a deep copy of the graph with a fresh ID. Node statuses and
// revision groups are preserved.
func (g *TaskGraph) Clone() *TaskGraph {
	nodes := make(map[string]*TaskNode, len(g.Nodes))
	for id, node := range g.Nodes {
		nodes[id] = node.Clone()
	}
	cp := &TaskGraph{
		ID:          types.NewID(),
		Nodes:       nodes,
		ReplanIndex: g.ReplanIndex,
		CreatedAt:   time.Now().UTC(),
	}
	cp.deriveEdges()
	return cp
}

// deriveEdges rebuilds the structural adjacency lists from declared inputs
// and outputs. Edge lists are sorted so traversal order is deterministic.
func (g *TaskGraph) deriveEdges() {
	g.edges = make(map[string][]string, len(g.Nodes))
	g.revEdges = make(map[string][]string, len(g.Nodes))

	ids := g.NodeIDs()
	for _, producerID := range ids {
		producer := g.Nodes[producerID]
		for _, consumerID := range ids {
			if producerID == consumerID {
				continue
			}
			consumer := g.Nodes[consumerID]
			if producesFor(producer, consumer) {
				g.edges[producerID] = append(g.edges[producerID], consumerID)
				g.revEdges[consumerID] = append(g.revEdges[consumerID], producerID)
			}
		}
	}

	for id := range g.edges {
		sort.Strings(g.edges[id])
	}
	for id := range g.revEdges {
		sort.Strings(g.revEdges[id])
	}
}

// producesFor reports whether any declared output kind of producer matches a
// declared input of consumer.
func producesFor(producer, consumer *TaskNode) bool {
	for _, kind := range producer.DeclaredOutputs {
		if consumer.ConsumesKind(kind) {
			return true
		}
	}
	return false
}
