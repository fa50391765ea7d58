package blackboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifactFor(kind, key string, revision uint64, payload string) *Artifact {
	return &Artifact{
		Kind:          kind,
		SchemaVersion: "1.0.0",
		Key:           key,
		Revision:      revision,
		Payload:       json.RawMessage(payload),
	}
}

func TestStorePutAndGet(t *testing.T) {
	store := NewStore()

	require.NoError(t, store.Put(artifactFor("blocks", "parse", 1, `{"n":1}`)))

	got, err := store.Get("blocks", "parse", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Revision)
	assert.JSONEq(t, `{"n":1}`, string(got.Payload))

	latest, err := store.Latest("blocks", "parse")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), latest.Revision)
}

func TestStoreRevisionsAreGapless(t *testing.T) {
	store := NewStore()

	require.NoError(t, store.Put(artifactFor("blocks", "parse", 1, `{"n":1}`)))
	require.NoError(t, store.Put(artifactFor("blocks", "parse", 2, `{"n":2}`)))

	tests := []struct {
		name     string
		revision uint64
	}{
		{"revision zero", 0},
		{"skipped revision", 4},
		{"already committed revision", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Put(artifactFor("blocks", "parse", tt.revision, `{}`))
			require.Error(t, err)
			if tt.revision > 0 {
				assert.ErrorIs(t, err, ErrStaleWrite)
			}
		})
	}

	assert.Equal(t, uint64(2), store.MaxRevision("blocks", "parse"))
	assert.Equal(t, uint64(3), store.NextRevision("blocks", "parse"))
}

func TestStoreCommittedRevisionsAreImmutable(t *testing.T) {
	store := NewStore()

	original := artifactFor("blocks", "parse", 1, `{"n":1}`)
	require.NoError(t, store.Put(original))

	// Mutating the caller's copy after Put must not leak into the store.
	original.Payload = json.RawMessage(`{"n":"mutated"}`)

	got, err := store.Get("blocks", "parse", 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(got.Payload))

	// Mutating a read result must not change the stored revision either.
	got.Payload = json.RawMessage(`{"n":"mutated"}`)
	again, err := store.Get("blocks", "parse", 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(again.Payload))
}

func TestStoreNotFound(t *testing.T) {
	store := NewStore()

	_, err := store.Get("blocks", "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Latest("blocks", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreHasWildcard(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Put(artifactFor("explanation", "explain", 1, `{}`)))

	assert.True(t, store.Has(Ref{Kind: "explanation", Key: "explain"}))
	assert.True(t, store.Has(Ref{Kind: "explanation", Key: WildcardKey}))
	assert.False(t, store.Has(Ref{Kind: "timeline", Key: WildcardKey}))
	assert.False(t, store.Has(Ref{Kind: "explanation", Key: "other"}))
}

func TestStoreLatestByKindSortedByKey(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Put(artifactFor("explanation", "b", 1, `{}`)))
	require.NoError(t, store.Put(artifactFor("explanation", "a", 1, `{}`)))
	require.NoError(t, store.Put(artifactFor("explanation", "a", 2, `{}`)))

	latest := store.LatestByKind("explanation")
	require.Len(t, latest, 2)
	assert.Equal(t, "a", latest[0].Key)
	assert.Equal(t, uint64(2), latest[0].Revision)
	assert.Equal(t, "b", latest[1].Key)
}

func TestStoreConcurrentWritersProduceGaplessRevisions(t *testing.T) {
	store := NewStore()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				for {
					next := store.NextRevision("blocks", "shared")
					err := store.Put(artifactFor("blocks", "shared", next, fmt.Sprintf(`{"w":%d}`, next)))
					if err == nil {
						break
					}
					require.ErrorIs(t, err, ErrStaleWrite)
				}
			}
		}()
	}
	wg.Wait()

	revisions := store.Revisions("blocks", "shared")
	require.Len(t, revisions, writers*perWriter)
	for i, artifact := range revisions {
		assert.Equal(t, uint64(i+1), artifact.Revision)
	}
}

func TestSubscribeDeliversEachRevisionExactlyOnce(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Backlog committed before the subscription.
	require.NoError(t, store.Put(artifactFor("blocks", "parse", 1, `{}`)))

	ch, stop := store.Subscribe(ctx, Ref{Kind: "blocks", Key: "parse"})
	defer stop()

	first := <-ch
	assert.Equal(t, uint64(1), first.Revision)

	require.NoError(t, store.Put(artifactFor("blocks", "parse", 2, `{}`)))
	require.NoError(t, store.Put(artifactFor("blocks", "parse", 3, `{}`)))

	second := <-ch
	third := <-ch
	assert.Equal(t, uint64(2), second.Revision)
	assert.Equal(t, uint64(3), third.Revision)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected duplicate delivery: revision %d", extra.Revision)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeWildcardCoversAllKeys(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, stop := store.Subscribe(ctx, Ref{Kind: "explanation", Key: WildcardKey})
	defer stop()

	require.NoError(t, store.Put(artifactFor("explanation", "a", 1, `{}`)))
	require.NoError(t, store.Put(artifactFor("explanation", "b", 1, `{}`)))

	seen := map[string]uint64{}
	for i := 0; i < 2; i++ {
		artifact := <-ch
		seen[artifact.Key] = artifact.Revision
	}
	assert.Equal(t, map[string]uint64{"a": 1, "b": 1}, seen)
}

func TestStorePutAfterCloseFails(t *testing.T) {
	store := NewStore()
	store.Close()

	err := store.Put(artifactFor("blocks", "parse", 1, `{}`))
	assert.ErrorIs(t, err, ErrClosed)
}
