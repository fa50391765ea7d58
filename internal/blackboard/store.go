package blackboard

import (
	"context"
	"sort"
	"sync"
)

// LatestRevision is the sentinel revision passed to Get to request the most
// recently committed revision of an artifact.
const LatestRevision uint64 = 0

// Store is the run-scoped blackboard: an append-only, versioned key-value
// store of typed artifacts.
//
// Concurrency model:
//   - Writes to different (kind, key) pairs are independent.
//   - Writes to the same pair are serialized by the optimistic stale-write
//     check: at most one writer commits any given revision number; competing
//     writers observe ErrStaleWrite and retry with a refreshed revision.
//   - Reads never block writers and observe only committed revisions.
//
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	cond    *sync.Cond
	entries map[Ref][]*Artifact
	byKind  map[string]map[string]struct{}
	closed  bool
}

// NewStore creates an empty blackboard for a single run.
func NewStore() *Store {
	s := &Store{
		entries: make(map[Ref][]*Artifact),
		byKind:  make(map[string]map[string]struct{}),
	}
	s.cond = sync.NewCond(s.mu.RLocker())
	return s
}

// Put appends a new revision for the artifact's (kind, key) pair.
//
// The caller supplies the revision it expects to commit (read-then-increment
// optimistic versioning). If that revision is not exactly one greater than the
// current maximum, Put fails with a stale-write error and commits nothing.
func (s *Store) Put(artifact *Artifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}

	ref := artifact.Ref()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	current := uint64(len(s.entries[ref]))
	if artifact.Revision != current+1 {
		return staleWriteError(ref, artifact.Revision, current+1)
	}

	s.entries[ref] = append(s.entries[ref], artifact.clone())

	keys := s.byKind[ref.Kind]
	if keys == nil {
		keys = make(map[string]struct{})
		s.byKind[ref.Kind] = keys
	}
	keys[ref.Key] = struct{}{}

	s.cond.Broadcast()
	return nil
}

// Get returns the artifact at the given revision, or the most recently
// committed revision when revision is LatestRevision.
func (s *Store) Get(kind, key string, revision uint64) (*Artifact, error) {
	ref := Ref{Kind: kind, Key: key}

	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.entries[ref]
	if len(revs) == 0 {
		return nil, notFoundError(ref, revision)
	}

	if revision == LatestRevision {
		return revs[len(revs)-1], nil
	}
	if revision > uint64(len(revs)) {
		return nil, notFoundError(ref, revision)
	}
	return revs[revision-1], nil
}

// Latest returns the newest committed revision for (kind, key).
func (s *Store) Latest(kind, key string) (*Artifact, error) {
	return s.Get(kind, key, LatestRevision)
}

// Has is a non-blocking existence probe used by the scheduler to test
// readiness. A wildcard ref is satisfied by any committed key of the kind.
func (s *Store) Has(ref Ref) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ref.IsWildcard() {
		return len(s.byKind[ref.Kind]) > 0
	}
	return len(s.entries[ref]) > 0
}

// MaxRevision returns the highest committed revision for (kind, key), or 0
// when nothing has been committed yet.
func (s *Store) MaxRevision(kind, key string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.entries[Ref{Kind: kind, Key: key}]))
}

// NextRevision returns the revision a writer should supply to commit the next
// revision for (kind, key). Callers racing on the same pair retry on
// ErrStaleWrite with a refreshed value.
func (s *Store) NextRevision(kind, key string) uint64 {
	return s.MaxRevision(kind, key) + 1
}

// LatestByKind returns the newest revision of every committed key of the given
// kind, sorted by key for deterministic iteration.
func (s *Store) LatestByKind(kind string) []*Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.byKind[kind]))
	for key := range s.byKind[kind] {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	artifacts := make([]*Artifact, 0, len(keys))
	for _, key := range keys {
		revs := s.entries[Ref{Kind: kind, Key: key}]
		artifacts = append(artifacts, revs[len(revs)-1])
	}
	return artifacts
}

// Refs returns every (kind, key) pair with at least one committed revision,
// sorted for deterministic iteration.
func (s *Store) Refs() []Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]Ref, 0, len(s.entries))
	for ref := range s.entries {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Key < refs[j].Key
	})
	return refs
}

// Revisions returns all committed revisions for (kind, key) in order.
func (s *Store) Revisions(kind, key string) []*Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.entries[Ref{Kind: kind, Key: key}]
	out := make([]*Artifact, len(revs))
	copy(out, revs)
	return out
}

// Len returns the number of distinct (kind, key) pairs on the blackboard.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe yields every committed revision for ref on the returned channel,
// in revision order, exactly once per revision: revisions already committed
// are delivered first, then each new revision as it lands. Delivering the
// backlog closes the gap between a Has probe and the subscription, so the
// scheduler never misses a wakeup.
//
// For a wildcard ref the subscription delivers each new revision of every key
// of the kind, ordered per key.
//
// The returned cancel function must be called to release the subscription;
// the channel is closed when the subscription ends or the store is closed.
func (s *Store) Subscribe(ctx context.Context, ref Ref) (<-chan *Artifact, func()) {
	ch := make(chan *Artifact)
	subCtx, cancel := context.WithCancel(ctx)

	// Wake the pump goroutine when the subscriber goes away, otherwise it
	// could wait forever on the condition variable.
	go func() {
		<-subCtx.Done()
		s.mu.RLock()
		s.cond.Broadcast()
		s.mu.RUnlock()
	}()

	go s.pump(subCtx, ref, ch)

	return ch, cancel
}

// pump walks committed revisions for ref sequentially, blocking on the
// store's condition variable between writes. It holds no lock while sending.
func (s *Store) pump(ctx context.Context, ref Ref, ch chan<- *Artifact) {
	defer close(ch)

	delivered := make(map[string]uint64)

	for {
		s.mu.RLock()
		var next *Artifact
		for next == nil {
			if ctx.Err() != nil || s.closed {
				s.mu.RUnlock()
				return
			}
			next = s.nextUndeliveredLocked(ref, delivered)
			if next == nil {
				s.cond.Wait()
			}
		}
		s.mu.RUnlock()

		select {
		case ch <- next:
			delivered[next.Key] = next.Revision
		case <-ctx.Done():
			return
		}
	}
}

// nextUndeliveredLocked returns the lowest committed revision not yet
// delivered for ref, or nil when the subscriber is caught up. Callers hold at
// least a read lock.
func (s *Store) nextUndeliveredLocked(ref Ref, delivered map[string]uint64) *Artifact {
	if !ref.IsWildcard() {
		revs := s.entries[ref]
		if last := delivered[ref.Key]; uint64(len(revs)) > last {
			return revs[last]
		}
		return nil
	}

	keys := make([]string, 0, len(s.byKind[ref.Kind]))
	for key := range s.byKind[ref.Kind] {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		revs := s.entries[Ref{Kind: ref.Kind, Key: key}]
		if last := delivered[key]; uint64(len(revs)) > last {
			return revs[last]
		}
	}
	return nil
}

// Close marks the store closed, rejects further writes, and releases all
// subscriptions. Committed revisions remain readable.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.mu.RLock()
	s.cond.Broadcast()
	s.mu.RUnlock()
}
