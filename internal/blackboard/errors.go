package blackboard

import (
	"fmt"

	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// ErrStaleWrite is returned when a Put supplies a revision number that is not
// exactly one greater than the current maximum for the (kind, key) pair.
// Callers recover by re-reading the current revision and retrying.
var ErrStaleWrite = types.NewRetryableError(types.BLACKBOARD_STALE_WRITE, "stale write")

// ErrNotFound is returned when a Get references a (kind, key, revision) that
// has no committed artifact.
var ErrNotFound = types.NewError(types.BLACKBOARD_NOT_FOUND, "artifact not found")

// ErrClosed is returned when the store has been closed at the end of a run.
var ErrClosed = types.NewError(types.BLACKBOARD_CLOSED, "blackboard is closed")

func staleWriteError(ref Ref, got, want uint64) error {
	return types.NewRetryableError(types.BLACKBOARD_STALE_WRITE,
		fmt.Sprintf("stale write for %s: supplied revision %d, expected %d", ref, got, want))
}

func notFoundError(ref Ref, revision uint64) error {
	if revision == LatestRevision {
		return types.NewError(types.BLACKBOARD_NOT_FOUND,
			fmt.Sprintf("no committed revision for %s", ref))
	}
	return types.NewError(types.BLACKBOARD_NOT_FOUND,
		fmt.Sprintf("revision %d not found for %s", revision, ref))
}
