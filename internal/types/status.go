package types

// RunStatus represents the terminal or in-flight status of a whole run.
type RunStatus string

const (
	// RunStatusPending indicates the run is planned but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every non-optional node completed and the
	// final review approved the checkpoint artifacts.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusPartialSuccess indicates the run finished with the best
	// available artifacts after the replan budget was exhausted while the
	// review still reported deficiencies.
	RunStatusPartialSuccess RunStatus = "partial_success"

	// RunStatusFailed indicates the run failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled during execution.
	RunStatusCancelled RunStatus = "cancelled"
)

// String returns the string representation of the run status.
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the status represents a terminal state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusPartialSuccess, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}
