// Package review turns an external review capability's verdict into a replan
// decision at planner-designated checkpoint nodes.
package review

import (
	"encoding/json"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
)

// Verdict is the review capability's overall judgment.
type Verdict string

const (
	// VerdictApproved lets the run proceed to completion.
	VerdictApproved Verdict = "approved"

	// VerdictDeficient names artifacts that must be reproduced via replan.
	VerdictDeficient Verdict = "deficient"
)

// Report is the scalar-plus-detail verdict the core consumes from review.
// The core never computes or interprets scores; Detail is opaque.
type Report struct {
	// Verdict is the overall judgment.
	Verdict Verdict `json:"verdict"`

	// DeficientArtifacts names the (kind, key) pairs judged deficient.
	// Empty when the verdict is approved.
	DeficientArtifacts []blackboard.Ref `json:"deficient_artifacts,omitempty"`

	// Detail carries the reviewer's opaque scoring payload, typically
	// per-dimension criteria (accuracy, clarity, completeness, safety),
	// an overall score, comments, and suggested actions.
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Approved reports whether the verdict approves the checkpoint artifacts.
func (r *Report) Approved() bool {
	return r.Verdict == VerdictApproved
}

// Criteria is the conventional shape of Report.Detail produced by the stock
// reviewer. The core never depends on it; it exists for collaborators and
// human-readable output.
type Criteria struct {
	Accuracy     float64  `json:"accuracy"`
	Clarity      float64  `json:"clarity"`
	Completeness float64  `json:"completeness"`
	Safety       float64  `json:"safety"`
	Overall      float64  `json:"overall"`
	Comments     []string `json:"comments,omitempty"`
	Actions      []string `json:"actions,omitempty"`
}
