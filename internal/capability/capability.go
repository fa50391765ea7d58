// Package capability defines the contract between the orchestration core and
// external transformation capabilities, plus the registry that resolves
// capability names to implementations at construction time.
//
// The core treats a capability invocation as an opaque, possibly slow,
// possibly failing remote call. It never inspects payload semantics beyond
// the kind and schema version tags.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// Output is one artifact produced by a capability invocation, before the
// scheduler assigns its blackboard revision.
type Output struct {
	// Kind is the schema family tag. Must be one of the invoking node's
	// declared output kinds.
	Kind string

	// SchemaVersion is the semantic version of the payload schema.
	SchemaVersion string

	// Key is the logical identity within the run. Empty means the scheduler
	// keys the artifact by the producing node's ID.
	Key string

	// Payload is the opaque artifact content.
	Payload json.RawMessage

	// Confidence is a calibrated score in [0, 1], or nil when absent.
	Confidence *float64

	// Note is an optional provenance note.
	Note string
}

// Capability is an external, named transformation invoked by a task node.
type Capability interface {
	// Name returns the capability's registry name.
	Name() string

	// Invoke runs the transformation over the input artifact set. The
	// context carries the node's timeout and the run's cancellation signal.
	Invoke(ctx context.Context, inputs []*blackboard.Artifact) ([]Output, error)
}

// Func adapts a plain function to the Capability interface.
type Func struct {
	CapabilityName string
	Fn             func(ctx context.Context, inputs []*blackboard.Artifact) ([]Output, error)
}

// Name implements Capability.
func (f Func) Name() string { return f.CapabilityName }

// Invoke implements Capability.
func (f Func) Invoke(ctx context.Context, inputs []*blackboard.Artifact) ([]Output, error) {
	return f.Fn(ctx, inputs)
}

// Registry maps capability names to implementations. It is resolved once at
// scheduler construction, not looked up ad hoc at call sites.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]Capability),
	}
}

// Register adds a capability to the registry. Registering a duplicate name
// returns an error.
func (r *Registry) Register(c Capability) error {
	if c == nil || c.Name() == "" {
		return fmt.Errorf("capability must have a non-empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[c.Name()]; exists {
		return fmt.Errorf("capability %q is already registered", c.Name())
	}
	r.capabilities[c.Name()] = c
	return nil
}

// Resolve returns the capability registered under name.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.capabilities[name]
	if !ok {
		return nil, types.NewError(types.CAPABILITY_NOT_FOUND,
			fmt.Sprintf("no capability registered under %q", name))
	}
	return c, nil
}

// Names returns all registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
