// Package events provides the run-scoped event bus connecting the planner,
// scheduler, and review gate to observers. The trace recorder is the primary
// observer: components publish transitions, the recorder appends them to the
// trace log without ever being consulted by the publishers.
package events

import (
	"encoding/json"
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// EventType identifies the category of an observable transition in a run.
type EventType string

const (
	// EventPlanCreated is published when the planner emits a task graph,
	// both for the initial plan and for each replan delta.
	EventPlanCreated EventType = "plan.created"

	// EventNodeStateChanged is published on every node status transition.
	EventNodeStateChanged EventType = "node.state_changed"

	// EventArtifactWritten is published after a revision commits to the
	// blackboard.
	EventArtifactWritten EventType = "artifact.written"

	// EventReviewInvoked is published when the review gate receives a
	// verdict from the review capability.
	EventReviewInvoked EventType = "review.invoked"

	// EventReplanTriggered is published when a deficient review verdict is
	// turned into a delta-subgraph.
	EventReplanTriggered EventType = "replan.triggered"

	// EventRunCompleted is published once when a run reaches a terminal
	// status other than cancelled.
	EventRunCompleted EventType = "run.completed"

	// EventRunCancelled is published once when the run-scoped cancellation
	// signal terminates the run.
	EventRunCancelled EventType = "run.cancelled"
)

// Event is a single observable transition. The bus assigns Sequence at
// publish time under its lock, so sequence numbers impose a total order over
// all transitions in the run.
type Event struct {
	Sequence  uint64      `json:"sequence"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	RunID     types.ID    `json:"run_id"`
	Payload   interface{} `json:"payload"`
}

// PlanCreatedPayload describes an emitted task graph.
type PlanCreatedPayload struct {
	GraphID     types.ID `json:"graph_id"`
	NodeIDs     []string `json:"node_ids"`
	ReplanIndex int      `json:"replan_index"`
}

// NodeStateChangedPayload describes a node status transition.
type NodeStateChangedPayload struct {
	NodeID        string `json:"node_id"`
	Capability    string `json:"capability"`
	From          string `json:"from"`
	To            string `json:"to"`
	Attempt       int    `json:"attempt"`
	RevisionGroup int    `json:"revision_group"`
	Reason        string `json:"reason,omitempty"`
}

// ArtifactWrittenPayload describes a committed blackboard revision.
type ArtifactWrittenPayload struct {
	Kind          string          `json:"kind"`
	Key           string          `json:"key"`
	Revision      uint64          `json:"revision"`
	SchemaVersion string          `json:"schema_version"`
	ProducedBy    string          `json:"produced_by"`
	PayloadHash   string          `json:"payload_hash"`
	Payload       json.RawMessage `json:"payload"`
	Confidence    *float64        `json:"confidence,omitempty"`
}

// ReviewInvokedPayload describes a review verdict received at a checkpoint.
type ReviewInvokedPayload struct {
	Verdict            string          `json:"verdict"`
	DeficientArtifacts []string        `json:"deficient_artifacts,omitempty"`
	Detail             json.RawMessage `json:"detail,omitempty"`
}

// ReplanTriggeredPayload describes a computed delta-subgraph.
type ReplanTriggeredPayload struct {
	ReplanIndex        int      `json:"replan_index"`
	AffectedNodeIDs    []string `json:"affected_node_ids"`
	DeficientArtifacts []string `json:"deficient_artifacts"`
}

// RunCompletedPayload carries the terminal status of a finished run.
type RunCompletedPayload struct {
	Status string `json:"status"`
}

// RunCancelledPayload carries the cancellation reason, if any.
type RunCancelledPayload struct {
	Reason string `json:"reason,omitempty"`
}
