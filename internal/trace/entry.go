// Package trace records every run event to an append-only JSONL log and
// reconstructs run state from such a log without invoking any capability.
// Each line is a self-describing JSON object, so a trace file remains
// readable even when the run that produced it crashed mid-write.
package trace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// Entry is a single line in a trace file: one recorded event with its
// payload kept as raw JSON so readers decode only the types they care about.
type Entry struct {
	Sequence  uint64           `json:"sequence"`
	Timestamp time.Time        `json:"timestamp"`
	Type      events.EventType `json:"type"`
	RunID     types.ID         `json:"run_id"`
	Payload   json.RawMessage  `json:"payload"`
}

// NewEntry converts a live event into its recorded form.
func NewEntry(event events.Event) (Entry, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return Entry{}, types.WrapError(types.TRACE_WRITE_FAILED,
			fmt.Sprintf("cannot encode %s payload", event.Type), err)
	}
	return Entry{
		Sequence:  event.Sequence,
		Timestamp: event.Timestamp,
		Type:      event.Type,
		RunID:     event.RunID,
		Payload:   payload,
	}, nil
}

// DecodePayload unmarshals the entry payload into out.
func (e Entry) DecodePayload(out any) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return types.WrapError(types.TRACE_CORRUPTED,
			fmt.Sprintf("sequence %d: cannot decode %s payload", e.Sequence, e.Type), err)
	}
	return nil
}
