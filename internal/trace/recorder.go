package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// Recorder subscribes to the run's event bus and appends every event to a
// JSONL trace file. It is a pure observer: components never wait on it, and
// a recorder failure never fails the run.
type Recorder struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	path   string
	lines  int
	failed error

	cancel func()
	done   chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger configures the recorder's logger.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder creates a recorder that writes trace files under dir.
func NewRecorder(dir string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		dir:    dir,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FileName returns the trace file name for a run started at the given time.
// The timestamp prefix keeps directory listings in chronological order.
func FileName(runID types.ID, startedAt time.Time) string {
	return fmt.Sprintf("%s_%s.jsonl", startedAt.UTC().Format("20060102T150405"), runID)
}

// Start opens the trace file and begins draining the bus into it. It returns
// the trace file path. Close must be called to flush and release the file.
func (r *Recorder) Start(ctx context.Context, bus events.Bus, runID types.ID) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", types.WrapError(types.TRACE_WRITE_FAILED,
			fmt.Sprintf("cannot create trace directory %s", r.dir), err)
	}

	path := filepath.Join(r.dir, FileName(runID, time.Now()))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", types.WrapError(types.TRACE_WRITE_FAILED,
			fmt.Sprintf("cannot open trace file %s", path), err)
	}

	r.mu.Lock()
	r.file = file
	r.enc = json.NewEncoder(file)
	r.path = path
	r.mu.Unlock()

	// Subscribe before returning so no event published after Start is missed.
	// The subscription deliberately outlives run cancellation: the cancelled
	// run's final events still belong in the trace.
	ch, cancel := bus.Subscribe(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		for event := range ch {
			r.record(event)
		}
	}()

	return path, nil
}

// record appends one event. Write failures are remembered and logged once;
// recording continues best-effort so a transient disk error does not silently
// drop the rest of the run.
func (r *Recorder) record(event events.Event) {
	entry, err := NewEntry(event)
	if err != nil {
		r.noteFailure(err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}
	if err := r.enc.Encode(entry); err != nil {
		r.failed = types.WrapError(types.TRACE_WRITE_FAILED, "trace append failed", err)
		r.logger.Error("trace append failed", "path", r.path, "sequence", event.Sequence, "error", err)
		return
	}
	r.lines++
}

func (r *Recorder) noteFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed == nil {
		r.failed = err
		r.logger.Error("trace record dropped", "path", r.path, "error", err)
	}
}

// Path returns the trace file path, empty before Start.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Lines returns the number of entries written so far.
func (r *Recorder) Lines() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

// Close stops the subscription, drains queued events, syncs and closes the
// file. It returns the first write failure seen during recording, if any.
func (r *Recorder) Close() error {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return r.failed
	}
	if err := r.file.Sync(); err != nil && r.failed == nil {
		r.failed = types.WrapError(types.TRACE_WRITE_FAILED, "trace sync failed", err)
	}
	if err := r.file.Close(); err != nil && r.failed == nil {
		r.failed = types.WrapError(types.TRACE_WRITE_FAILED, "trace close failed", err)
	}
	r.file = nil
	r.enc = nil
	return r.failed
}
