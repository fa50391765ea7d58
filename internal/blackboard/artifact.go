// Package blackboard provides the append-only, versioned artifact store shared
// by all nodes in a run. Artifacts are immutable: for a fixed (kind, key) pair
// revisions strictly increase and committed revisions are never mutated or
// deleted. The store is run-scoped; its lifetime equals the run's lifetime.
package blackboard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// WildcardKey matches any key of a given kind when used in a declared input.
const WildcardKey = "*"

// Ref identifies an artifact family within a run by its (kind, key) pair.
type Ref struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

// String returns the canonical "kind/key" form of the ref.
func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.Key)
}

// IsWildcard reports whether the ref matches any key of its kind.
func (r Ref) IsWildcard() bool {
	return r.Key == WildcardKey
}

// Matches reports whether this ref (possibly wildcarded) matches a concrete ref.
func (r Ref) Matches(other Ref) bool {
	if r.Kind != other.Kind {
		return false
	}
	return r.IsWildcard() || r.Key == other.Key
}

// Provenance records where one revision of an artifact came from.
// Entries accumulate in order as revisions are produced.
type Provenance struct {
	ProducedBy string    `json:"produced_by"`
	At         time.Time `json:"at"`
	Note       string    `json:"note,omitempty"`
}

// Artifact is an immutable, versioned, typed unit of output produced by a
// capability invocation. The payload is opaque to the core: contract checking
// happens in the producing and consuming capabilities, never here.
type Artifact struct {
	// Kind is the schema family tag, e.g. "explanation".
	Kind string `json:"kind"`

	// SchemaVersion is the semantic version of the payload schema.
	SchemaVersion string `json:"schema_version"`

	// Key is the logical identity of the artifact within a run.
	Key string `json:"key"`

	// Revision is the monotonically increasing revision number, unique and
	// gapless per (kind, key). The first committed revision is 1.
	Revision uint64 `json:"revision"`

	// Payload is the opaque artifact content.
	Payload json.RawMessage `json:"payload"`

	// Confidence is a calibrated score in [0, 1], or nil when absent.
	Confidence *float64 `json:"confidence,omitempty"`

	// Provenance is the ordered list of production records for this revision.
	Provenance []Provenance `json:"provenance,omitempty"`
}

// Ref returns the (kind, key) identity of the artifact.
func (a *Artifact) Ref() Ref {
	return Ref{Kind: a.Kind, Key: a.Key}
}

// PayloadHash returns the hex-encoded SHA-256 digest of the payload.
// Replay verification compares (kind, key, revision, payload-hash) tuples.
func (a *Artifact) PayloadHash() string {
	sum := sha256.Sum256(a.Payload)
	return hex.EncodeToString(sum[:])
}

// Validate checks structural invariants that the store enforces on write.
func (a *Artifact) Validate() error {
	if a.Kind == "" {
		return fmt.Errorf("artifact kind cannot be empty")
	}
	if a.Key == "" || a.Key == WildcardKey {
		return fmt.Errorf("artifact key must be a concrete, non-empty key")
	}
	if a.Revision == 0 {
		return fmt.Errorf("artifact revision must be >= 1")
	}
	if a.Confidence != nil && (*a.Confidence < 0 || *a.Confidence > 1) {
		return fmt.Errorf("artifact confidence must be within [0, 1], got %v", *a.Confidence)
	}
	return nil
}

// clone returns a deep copy so committed revisions stay immutable even if the
// caller keeps mutating its own struct after Put.
func (a *Artifact) clone() *Artifact {
	cp := *a
	if a.Payload != nil {
		cp.Payload = make(json.RawMessage, len(a.Payload))
		copy(cp.Payload, a.Payload)
	}
	if a.Confidence != nil {
		c := *a.Confidence
		cp.Confidence = &c
	}
	if a.Provenance != nil {
		cp.Provenance = make([]Provenance, len(a.Provenance))
		copy(cp.Provenance, a.Provenance)
	}
	return &cp
}
