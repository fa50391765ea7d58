package graph

import (
	"math"
	"time"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
)

// BackoffStrategy defines the strategy for calculating retry delays.
type BackoffStrategy string

const (
	// BackoffConstant returns a constant delay for all retry attempts.
	BackoffConstant BackoffStrategy = "constant"
	// BackoffLinear increases the delay linearly with each retry attempt.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential increases the delay exponentially with each retry attempt.
	BackoffExponential BackoffStrategy = "exponential"
)

// NodeStatus represents the execution status of a task node.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusReady     NodeStatus = "ready"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSucceeded NodeStatus = "succeeded"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
	NodeStatusTimedOut  NodeStatus = "timed_out"
	NodeStatusCancelled NodeStatus = "cancelled"
)

// IsTerminal returns true if the status is one a node never leaves within its
// current revision group.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusSucceeded, NodeStatusFailed, NodeStatusSkipped, NodeStatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the node status.
func (s NodeStatus) String() string {
	return string(s)
}

// TaskNode represents a single declared capability invocation in a task graph.
type TaskNode struct {
	// ID is the unique identifier of the node within its graph.
	ID string `json:"id"`

	// Capability names the external transformation this node invokes.
	Capability string `json:"capability"`

	// DeclaredInputs are the (kind, key) pairs this node consumes. A key of
	// blackboard.WildcardKey matches any key of the kind.
	DeclaredInputs []blackboard.Ref `json:"declared_inputs,omitempty"`

	// DeclaredOutputs are the artifact kinds this node produces.
	DeclaredOutputs []string `json:"declared_outputs,omitempty"`

	// Optional marks a node whose failure does not skip its dependents.
	Optional bool `json:"optional,omitempty"`

	// Checkpoint marks a node whose completion gates the review evaluation.
	Checkpoint bool `json:"checkpoint,omitempty"`

	// Status is the current execution status.
	Status NodeStatus `json:"status"`

	// Attempt counts execution attempts within the current revision group.
	Attempt int `json:"attempt"`

	// RevisionGroup increments on replan so repeated executions of the same
	// logical node are distinguishable and write fresh blackboard revisions.
	RevisionGroup int `json:"revision_group"`

	// Timeout bounds one capability invocation; zero means no timeout.
	Timeout time.Duration `json:"timeout,omitempty"`

	// RetryPolicy controls retry behavior after failures and timeouts.
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`
}

// ProducesKind reports whether the node declares the given output kind.
func (n *TaskNode) ProducesKind(kind string) bool {
	for _, k := range n.DeclaredOutputs {
		if k == kind {
			return true
		}
	}
	return false
}

// ConsumesKind reports whether any declared input has the given kind.
func (n *TaskNode) ConsumesKind(kind string) bool {
	for _, in := range n.DeclaredInputs {
		if in.Kind == kind {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the node.
func (n *TaskNode) Clone() *TaskNode {
	cp := *n
	if n.DeclaredInputs != nil {
		cp.DeclaredInputs = make([]blackboard.Ref, len(n.DeclaredInputs))
		copy(cp.DeclaredInputs, n.DeclaredInputs)
	}
	if n.DeclaredOutputs != nil {
		cp.DeclaredOutputs = make([]string, len(n.DeclaredOutputs))
		copy(cp.DeclaredOutputs, n.DeclaredOutputs)
	}
	if n.RetryPolicy != nil {
		rp := *n.RetryPolicy
		cp.RetryPolicy = &rp
	}
	return &cp
}

// RetryPolicy defines the retry behavior for a task node.
type RetryPolicy struct {
	// MaxAttempts is the total number of execution attempts allowed per
	// revision group, including the first. The node becomes terminal failed
	// once the bound is exhausted.
	MaxAttempts int `json:"max_attempts"`
	// BackoffStrategy determines how delays are calculated between retries.
	BackoffStrategy BackoffStrategy `json:"backoff_strategy"`
	// InitialDelay is the delay before the first retry attempt.
	InitialDelay time.Duration `json:"initial_delay"`
	// MaxDelay is the maximum delay between retry attempts (used for exponential backoff).
	MaxDelay time.Duration `json:"max_delay"`
	// Multiplier is the factor by which the delay increases (used for exponential backoff).
	Multiplier float64 `json:"multiplier"`
}

// CalculateDelay calculates the delay duration for a given retry attempt
// based on the configured backoff strategy.
func (rp *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	switch rp.BackoffStrategy {
	case BackoffConstant:
		return rp.InitialDelay
	case BackoffLinear:
		return rp.InitialDelay + (rp.InitialDelay * time.Duration(attempt))
	case BackoffExponential:
		delay := time.Duration(float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt)))
		if rp.MaxDelay > 0 && delay > rp.MaxDelay {
			return rp.MaxDelay
		}
		return delay
	default:
		return rp.InitialDelay
	}
}

// DefaultRetryPolicy is the policy applied to nodes that declare none.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     3,
		BackoffStrategy: BackoffExponential,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
	}
}
