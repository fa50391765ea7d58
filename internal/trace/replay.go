package trace

import (
	"fmt"
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// Replay is the run state reconstructed from a trace, with no capability
// invoked and no clock consulted. Replaying the same trace always yields the
// same Replay.
type Replay struct {
	RunID types.ID

	// Store holds every artifact revision the run committed, rebuilt in
	// recorded order with hashes verified.
	Store *blackboard.Store

	// NodeStatuses and NodeAttempts reflect the last recorded transition of
	// each node that appeared in the trace.
	NodeStatuses map[string]graph.NodeStatus
	NodeAttempts map[string]int

	Plans   []events.PlanCreatedPayload
	Reviews []events.ReviewInvokedPayload
	Replans []events.ReplanTriggeredPayload

	// Status is the recorded terminal status, or RunStatusRunning when the
	// trace ends before a run.completed entry (a crashed or truncated run).
	Status    types.RunStatus
	Cancelled bool

	Entries      int
	LastSequence uint64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// ReplayFile reconstructs run state from the trace file at path.
func ReplayFile(path string) (*Replay, error) {
	entries, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReplayEntries(entries)
}

// ReplayEntries reconstructs run state from already-parsed entries.
func ReplayEntries(entries []Entry) (*Replay, error) {
	r := &Replay{
		Store:        blackboard.NewStore(),
		NodeStatuses: make(map[string]graph.NodeStatus),
		NodeAttempts: make(map[string]int),
		Status:       types.RunStatusRunning,
		Entries:      len(entries),
	}

	for i, entry := range entries {
		if entry.Sequence <= r.LastSequence {
			return nil, types.NewError(types.TRACE_CORRUPTED,
				fmt.Sprintf("sequence order violated at entry %d: %d after %d",
					i, entry.Sequence, r.LastSequence))
		}
		r.LastSequence = entry.Sequence

		if r.RunID.IsZero() {
			r.RunID = entry.RunID
			r.StartedAt = entry.Timestamp
		} else if entry.RunID != r.RunID {
			return nil, types.NewError(types.TRACE_CORRUPTED,
				fmt.Sprintf("entry %d belongs to run %s, trace is for run %s",
					i, entry.RunID, r.RunID))
		}
		r.FinishedAt = entry.Timestamp

		if err := r.apply(entry); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Replay) apply(entry Entry) error {
	switch entry.Type {
	case events.EventPlanCreated:
		var p events.PlanCreatedPayload
		if err := entry.DecodePayload(&p); err != nil {
			return err
		}
		r.Plans = append(r.Plans, p)

	case events.EventNodeStateChanged:
		var p events.NodeStateChangedPayload
		if err := entry.DecodePayload(&p); err != nil {
			return err
		}
		r.NodeStatuses[p.NodeID] = graph.NodeStatus(p.To)
		if p.Attempt > r.NodeAttempts[p.NodeID] {
			r.NodeAttempts[p.NodeID] = p.Attempt
		}

	case events.EventArtifactWritten:
		var p events.ArtifactWrittenPayload
		if err := entry.DecodePayload(&p); err != nil {
			return err
		}
		return r.applyArtifact(entry, p)

	case events.EventReviewInvoked:
		var p events.ReviewInvokedPayload
		if err := entry.DecodePayload(&p); err != nil {
			return err
		}
		r.Reviews = append(r.Reviews, p)

	case events.EventReplanTriggered:
		var p events.ReplanTriggeredPayload
		if err := entry.DecodePayload(&p); err != nil {
			return err
		}
		r.Replans = append(r.Replans, p)

	case events.EventRunCompleted:
		var p events.RunCompletedPayload
		if err := entry.DecodePayload(&p); err != nil {
			return err
		}
		r.Status = types.RunStatus(p.Status)

	case events.EventRunCancelled:
		r.Cancelled = true
		r.Status = types.RunStatusCancelled
	}
	return nil
}

// applyArtifact re-commits one recorded revision and verifies its hash.
// The recorded order satisfies the store's gapless revision rule, so a stale
// write here means the trace itself is inconsistent.
func (r *Replay) applyArtifact(entry Entry, p events.ArtifactWrittenPayload) error {
	artifact := &blackboard.Artifact{
		Kind:          p.Kind,
		SchemaVersion: p.SchemaVersion,
		Key:           p.Key,
		Revision:      p.Revision,
		Payload:       p.Payload,
		Confidence:    p.Confidence,
		Provenance: []blackboard.Provenance{{
			ProducedBy: p.ProducedBy,
			At:         entry.Timestamp,
		}},
	}

	if got := artifact.PayloadHash(); got != p.PayloadHash {
		return types.NewError(types.TRACE_CORRUPTED,
			fmt.Sprintf("sequence %d: payload hash mismatch for %s/%s rev %d",
				entry.Sequence, p.Kind, p.Key, p.Revision))
	}

	if err := r.Store.Put(artifact); err != nil {
		return types.WrapError(types.TRACE_CORRUPTED,
			fmt.Sprintf("sequence %d: cannot re-commit %s/%s rev %d",
				entry.Sequence, p.Kind, p.Key, p.Revision), err)
	}
	return nil
}
