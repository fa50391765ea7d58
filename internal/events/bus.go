package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Bus distributes run events to subscribers with optional type filtering.
//
// Thread safety:
//   - All methods are safe for concurrent use.
//   - Sequence numbers are assigned under the bus lock, so every subscriber
//     observes events in sequence order.
//
// Delivery:
//   - Publish never blocks on subscribers and never drops events; each
//     subscription buffers undelivered events in an internal queue drained by
//     a dedicated goroutine. The bus is run-scoped, so the queue is bounded
//     by the run's own event volume.
type Bus interface {
	// Publish stamps the event with the next sequence number and timestamp,
	// then delivers it to all matching subscribers.
	// Returns an error only if the bus is closed.
	Publish(ctx context.Context, event Event) error

	// Subscribe creates a subscription filtered to the given event types
	// (nil or empty = all events). The cleanup function must be called to
	// release the subscription; the channel closes when the subscription
	// ends or the bus is closed and fully drained.
	Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan Event, func())

	// Close shuts down the bus. Queued events are still drained to
	// subscribers before their channels close.
	Close() error
}

// DefaultBus implements Bus with per-subscriber queues.
type DefaultBus struct {
	mu          sync.Mutex
	sequence    uint64
	subscribers map[string]*subscription
	closed      bool
}

// subscription is a single subscriber with its own drain goroutine.
type subscription struct {
	id      string
	ch      chan Event
	filter  map[EventType]struct{}
	queue   []Event
	qmu     sync.Mutex
	qcond   *sync.Cond
	done    bool
	created time.Time

	received atomic.Int64
}

// NewBus creates an empty event bus for a single run.
func NewBus() *DefaultBus {
	return &DefaultBus{
		subscribers: make(map[string]*subscription),
	}
}

// Publish implements Bus.
func (b *DefaultBus) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus is closed")
	}

	b.sequence++
	event.Sequence = b.sequence
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, sub := range b.subscribers {
		if sub.matches(event.Type) {
			sub.enqueue(event)
		}
	}
	b.mu.Unlock()
	return nil
}

// Subscribe implements Bus.
func (b *DefaultBus) Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan Event, func()) {
	sub := &subscription{
		id:      uuid.New().String(),
		ch:      make(chan Event),
		created: time.Now(),
	}
	sub.qcond = sync.NewCond(&sub.qmu)

	if len(eventTypes) > 0 {
		sub.filter = make(map[EventType]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.filter[t] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	go sub.drain(ctx)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, sub.id)
			b.mu.Unlock()
			sub.stop()
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return sub.ch, cancel
}

// Close implements Bus.
func (b *DefaultBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.subscribers = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

// Sequence returns the number of events published so far.
func (b *DefaultBus) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sequence
}

func (s *subscription) matches(t EventType) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[t]
	return ok
}

func (s *subscription) enqueue(event Event) {
	s.qmu.Lock()
	if !s.done {
		s.queue = append(s.queue, event)
		s.received.Add(1)
	}
	s.qmu.Unlock()
	s.qcond.Signal()
}

// stop marks the subscription done. The drain goroutine flushes whatever is
// already queued, then closes the channel.
func (s *subscription) stop() {
	s.qmu.Lock()
	s.done = true
	s.qmu.Unlock()
	s.qcond.Signal()
}

// drain delivers queued events to the subscriber channel in order.
func (s *subscription) drain(ctx context.Context) {
	defer close(s.ch)

	for {
		s.qmu.Lock()
		for len(s.queue) == 0 && !s.done {
			s.qcond.Wait()
		}
		if len(s.queue) == 0 && s.done {
			s.qmu.Unlock()
			return
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.qmu.Unlock()

		select {
		case s.ch <- event:
		case <-ctx.Done():
			return
		}
	}
}
