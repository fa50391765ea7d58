package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalkey-Chen/InterLines/internal/types"
)

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d events", len(out), n)
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPublishAssignsIncreasingSequence(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx := context.Background()
	runID := types.NewID()

	ch, cancel := bus.Subscribe(ctx)
	defer cancel()

	for i := 0; i < 10; i++ {
		err := bus.Publish(ctx, Event{
			Type:    EventNodeStateChanged,
			RunID:   runID,
			Payload: NodeStateChangedPayload{NodeID: fmt.Sprintf("node-%d", i)},
		})
		require.NoError(t, err)
	}

	got := collect(t, ch, 10)
	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Sequence)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.Equal(t, uint64(10), bus.Sequence())
}

func TestSubscribeFiltersByType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx := context.Background()
	ch, cancel := bus.Subscribe(ctx, EventArtifactWritten, EventRunCompleted)
	defer cancel()

	require.NoError(t, bus.Publish(ctx, Event{Type: EventPlanCreated}))
	require.NoError(t, bus.Publish(ctx, Event{Type: EventArtifactWritten}))
	require.NoError(t, bus.Publish(ctx, Event{Type: EventNodeStateChanged}))
	require.NoError(t, bus.Publish(ctx, Event{Type: EventRunCompleted}))

	got := collect(t, ch, 2)
	assert.Equal(t, EventArtifactWritten, got[0].Type)
	assert.Equal(t, EventRunCompleted, got[1].Type)
	assert.Equal(t, uint64(2), got[0].Sequence)
	assert.Equal(t, uint64(4), got[1].Sequence)
}

func TestSlowConsumerLosesNothing(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx := context.Background()
	ch, cancel := bus.Subscribe(ctx)
	defer cancel()

	const total = 500
	for i := 0; i < total; i++ {
		require.NoError(t, bus.Publish(ctx, Event{Type: EventNodeStateChanged}))
	}

	// Read nothing until every event is published, then drain slowly.
	got := collect(t, ch, total)
	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Sequence)
	}
}

func TestConcurrentPublishersSeeTotalOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx := context.Background()
	ch, cancel := bus.Subscribe(ctx)
	defer cancel()

	const publishers = 8
	const perPublisher = 50

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				_ = bus.Publish(ctx, Event{Type: EventArtifactWritten})
			}
		}()
	}
	wg.Wait()

	got := collect(t, ch, publishers*perPublisher)
	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Sequence, "delivery order must match sequence order")
	}
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	bus := NewBus()

	ctx := context.Background()
	ch, cancel := bus.Subscribe(ctx)
	defer cancel()

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(ctx, Event{Type: EventNodeStateChanged}))
	}
	require.NoError(t, bus.Close())

	got := make([]Event, 0, 20)
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 20)
	assert.Equal(t, uint64(20), got[19].Sequence)
}

func TestPublishAfterCloseFails(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), Event{Type: EventRunCompleted})
	assert.Error(t, err)
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Close())

	ch, cancel := bus.Subscribe(context.Background())
	defer cancel()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestCancelSubscriptionStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx := context.Background()
	ch, cancel := bus.Subscribe(ctx)

	require.NoError(t, bus.Publish(ctx, Event{Type: EventNodeStateChanged}))
	collect(t, ch, 1)

	cancel()

	// Events published after cancellation are not queued for this
	// subscriber; the channel eventually closes.
	require.NoError(t, bus.Publish(ctx, Event{Type: EventNodeStateChanged}))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscriber channel never closed after cancel")
		}
	}
}
