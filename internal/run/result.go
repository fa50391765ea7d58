package run

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/capability"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/planner"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// Result is the outcome of one document run.
type Result struct {
	RunID   types.ID
	Status  types.RunStatus
	Profile *planner.DocumentProfile

	// Graph is the last executed task graph, NodeStatuses its final node
	// statuses.
	Graph        *graph.TaskGraph
	NodeStatuses map[string]graph.NodeStatus

	// Store holds every artifact revision the run committed.
	Store *blackboard.Store

	Replans   int
	TracePath string
	StartedAt time.Time
	Duration  time.Duration
}

// Brief returns the final public brief artifact, or nil if the run never
// produced one.
func (r *Result) Brief() *blackboard.Artifact {
	latest := r.Store.LatestByKind(capability.KindPublicBrief)
	if len(latest) == 0 {
		return nil
	}
	return latest[0]
}

// snapshot is the exported YAML shape of a finished run.
type snapshot struct {
	RunID     string                   `yaml:"run_id"`
	Status    string                   `yaml:"status"`
	StartedAt time.Time                `yaml:"started_at"`
	Duration  string                   `yaml:"duration"`
	Replans   int                      `yaml:"replans"`
	TracePath string                   `yaml:"trace_path,omitempty"`
	Profile   *planner.DocumentProfile `yaml:"profile,omitempty"`
	Nodes     map[string]string        `yaml:"nodes"`
	Artifacts []snapshotArtifact       `yaml:"artifacts"`
}

type snapshotArtifact struct {
	Kind          string   `yaml:"kind"`
	Key           string   `yaml:"key"`
	Revision      uint64   `yaml:"revision"`
	SchemaVersion string   `yaml:"schema_version"`
	ProducedBy    string   `yaml:"produced_by,omitempty"`
	Confidence    *float64 `yaml:"confidence,omitempty"`
	Payload       any      `yaml:"payload"`
}

// Snapshot renders the run result as YAML: final node statuses plus the
// latest revision of every artifact family, payloads decoded for readability.
func (r *Result) Snapshot() ([]byte, error) {
	snap := snapshot{
		RunID:     r.RunID.String(),
		Status:    string(r.Status),
		StartedAt: r.StartedAt,
		Duration:  r.Duration.String(),
		Replans:   r.Replans,
		TracePath: r.TracePath,
		Profile:   r.Profile,
		Nodes:     make(map[string]string, len(r.NodeStatuses)),
	}
	for id, status := range r.NodeStatuses {
		snap.Nodes[id] = string(status)
	}

	for _, ref := range r.Store.Refs() {
		artifact, err := r.Store.Latest(ref.Kind, ref.Key)
		if err != nil {
			continue
		}

		var payload any
		if err := json.Unmarshal(artifact.Payload, &payload); err != nil {
			payload = string(artifact.Payload)
		}

		producedBy := ""
		if n := len(artifact.Provenance); n > 0 {
			producedBy = artifact.Provenance[n-1].ProducedBy
		}

		snap.Artifacts = append(snap.Artifacts, snapshotArtifact{
			Kind:          artifact.Kind,
			Key:           artifact.Key,
			Revision:      artifact.Revision,
			SchemaVersion: artifact.SchemaVersion,
			ProducedBy:    producedBy,
			Confidence:    artifact.Confidence,
			Payload:       payload,
		})
	}

	return yaml.Marshal(snap)
}

// WriteSnapshot writes the YAML snapshot to path.
func (r *Result) WriteSnapshot(path string) error {
	data, err := r.Snapshot()
	if err != nil {
		return fmt.Errorf("cannot render snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write snapshot %s: %w", path, err)
	}
	return nil
}
