package scheduler

import (
	"sync"
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
)

// Transition records one node status change for publication.
type Transition struct {
	NodeID        string
	Capability    string
	From          graph.NodeStatus
	To            graph.NodeStatus
	Attempt       int
	RevisionGroup int
	Reason        string
}

// state manages the runtime execution state of one graph pass. It guards all
// node status transitions behind a mutex; workers and the dispatch loop share
// it. Per-node timers and attempt bookkeeping stay private to the worker.
type state struct {
	mu        sync.RWMutex
	graph     *graph.TaskGraph
	startedAt map[string]time.Time
}

func newState(g *graph.TaskGraph) *state {
	return &state{
		graph:     g,
		startedAt: make(map[string]time.Time),
	}
}

// readyCandidates returns all Pending nodes whose declared inputs are all
// satisfied on the blackboard. An input is satisfied when an artifact is
// committed for it, or waived when every structural producer of its kind is
// terminal without having produced one (optional producers that failed or
// were skipped).
func (s *state) readyCandidates(store *blackboard.Store) []*graph.TaskNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ready []*graph.TaskNode
	for _, id := range s.graph.NodeIDs() {
		node := s.graph.Nodes[id]
		if node.Status != graph.NodeStatusPending {
			continue
		}
		if s.inputsSatisfiedLocked(store, node) {
			ready = append(ready, node)
		}
	}
	return ready
}

func (s *state) inputsSatisfiedLocked(store *blackboard.Store, node *graph.TaskNode) bool {
	for _, input := range node.DeclaredInputs {
		if store.Has(input) {
			continue
		}
		if !s.inputWaivedLocked(input) {
			return false
		}
	}
	return true
}

// inputWaivedLocked reports whether an absent input can never arrive because
// every producer of its kind already settled without a write. Seeded inputs
// have no producer and are never waived: they are either present or the
// planner rejected the graph.
func (s *state) inputWaivedLocked(input blackboard.Ref) bool {
	producers := s.graph.ProducersOfKind(input.Kind)
	if len(producers) == 0 {
		return false
	}
	for _, id := range producers {
		if !s.graph.Nodes[id].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// transition moves a node to the given status, returning the Transition for
// publication. Returns false when the node is already terminal, so racing
// transitions (cancellation vs. completion) resolve first-writer-wins.
func (s *state) transition(nodeID string, to graph.NodeStatus, reason string) (Transition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.graph.Nodes[nodeID]
	if node == nil || node.Status.IsTerminal() {
		return Transition{}, false
	}

	from := node.Status
	node.Status = to
	if to == graph.NodeStatusRunning {
		if _, seen := s.startedAt[nodeID]; !seen {
			s.startedAt[nodeID] = time.Now()
		}
	}

	return Transition{
		NodeID:        nodeID,
		Capability:    node.Capability,
		From:          from,
		To:            to,
		Attempt:       node.Attempt,
		RevisionGroup: node.RevisionGroup,
		Reason:        reason,
	}, true
}

// recordAttemptFailure records a failed attempt. A non-final failure surfaces
// the attempt status and returns the node to Running under the same lock, so
// readiness checks never observe a retryable node as settled. A final failure
// settles the node as Failed, with a timed-out last attempt recorded before
// the terminal transition.
func (s *state) recordAttemptFailure(nodeID string, attemptStatus graph.NodeStatus, reason string, final bool) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.graph.Nodes[nodeID]
	if node == nil || node.Status.IsTerminal() {
		return nil
	}

	var transitions []Transition
	mark := func(to graph.NodeStatus, why string) {
		transitions = append(transitions, Transition{
			NodeID:        nodeID,
			Capability:    node.Capability,
			From:          node.Status,
			To:            to,
			Attempt:       node.Attempt,
			RevisionGroup: node.RevisionGroup,
			Reason:        why,
		})
		node.Status = to
	}

	mark(attemptStatus, reason)
	if final {
		if attemptStatus != graph.NodeStatusFailed {
			mark(graph.NodeStatusFailed, "retry bound exhausted")
		}
	} else {
		mark(graph.NodeStatusRunning, "retrying")
	}
	return transitions
}

// bumpAttempt increments a node's attempt counter and returns the new value.
func (s *state) bumpAttempt(nodeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.graph.Nodes[nodeID]
	node.Attempt++
	return node.Attempt
}

// skipDependents transitions every non-terminal transitive dependent of the
// failed node directly to Skipped. The skipped nodes never run; the returned
// transitions are published so the containment is reported, never silent.
func (s *state) skipDependents(nodeID string, reason string) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	var transitions []Transition
	for id := range s.graph.TransitiveDependents(nodeID) {
		node := s.graph.Nodes[id]
		if node.Status.IsTerminal() || node.Status == graph.NodeStatusRunning {
			continue
		}
		from := node.Status
		node.Status = graph.NodeStatusSkipped
		transitions = append(transitions, Transition{
			NodeID:        id,
			Capability:    node.Capability,
			From:          from,
			To:            graph.NodeStatusSkipped,
			Attempt:       node.Attempt,
			RevisionGroup: node.RevisionGroup,
			Reason:        reason,
		})
	}
	return transitions
}

// cancelRemaining transitions every node still Pending or Ready to Cancelled.
// Running nodes settle through their workers observing the context.
func (s *state) cancelRemaining(reason string) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	var transitions []Transition
	for _, id := range s.graph.NodeIDs() {
		node := s.graph.Nodes[id]
		if node.Status != graph.NodeStatusPending && node.Status != graph.NodeStatusReady {
			continue
		}
		from := node.Status
		node.Status = graph.NodeStatusCancelled
		transitions = append(transitions, Transition{
			NodeID:        id,
			Capability:    node.Capability,
			From:          from,
			To:            graph.NodeStatusCancelled,
			Attempt:       node.Attempt,
			RevisionGroup: node.RevisionGroup,
			Reason:        reason,
		})
	}
	return transitions
}

// settled reports whether no node is Pending, Ready, or Running.
func (s *state) settled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, node := range s.graph.Nodes {
		switch node.Status {
		case graph.NodeStatusPending, graph.NodeStatusReady, graph.NodeStatusRunning:
			return false
		}
	}
	return true
}

// statuses returns a copy of every node's current status.
func (s *state) statuses() map[string]graph.NodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]graph.NodeStatus, len(s.graph.Nodes))
	for id, node := range s.graph.Nodes {
		out[id] = node.Status
	}
	return out
}

// status returns one node's current status.
func (s *state) status(nodeID string) graph.NodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if node := s.graph.Nodes[nodeID]; node != nil {
		return node.Status
	}
	return ""
}

// duration returns how long a node ran, when it ran at all.
func (s *state) duration(nodeID string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if started, ok := s.startedAt[nodeID]; ok {
		return time.Since(started)
	}
	return 0
}
