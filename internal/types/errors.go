package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for InterLines core errors.
type ErrorCode string

// Planning error codes. These are fatal: planning fails atomically and no
// partial graph is handed to the scheduler.
const (
	PLAN_MISSING_DEPENDENCY ErrorCode = "PLAN_MISSING_DEPENDENCY"
	PLAN_CYCLE_DETECTED     ErrorCode = "PLAN_CYCLE_DETECTED"
	PLAN_INVALID_GRAPH      ErrorCode = "PLAN_INVALID_GRAPH"
)

// Blackboard error codes.
const (
	BLACKBOARD_STALE_WRITE ErrorCode = "BLACKBOARD_STALE_WRITE"
	BLACKBOARD_NOT_FOUND   ErrorCode = "BLACKBOARD_NOT_FOUND"
	BLACKBOARD_CLOSED      ErrorCode = "BLACKBOARD_CLOSED"
)

// Node execution error codes. These are contained at the node boundary and
// surface through node status plus trace entries.
const (
	AGENT_EXECUTION_FAILED   ErrorCode = "AGENT_EXECUTION_FAILED"
	SCHEMA_VALIDATION_FAILED ErrorCode = "SCHEMA_VALIDATION_FAILED"
	NODE_TIMEOUT             ErrorCode = "NODE_TIMEOUT"
	CAPABILITY_NOT_FOUND     ErrorCode = "CAPABILITY_NOT_FOUND"
)

// Run lifecycle error codes.
const (
	RUN_CANCELLED           ErrorCode = "RUN_CANCELLED"
	REPLAN_BUDGET_EXHAUSTED ErrorCode = "REPLAN_BUDGET_EXHAUSTED"
	REVIEW_FAILED           ErrorCode = "REVIEW_FAILED"
)

// Trace error codes.
const (
	TRACE_WRITE_FAILED ErrorCode = "TRACE_WRITE_FAILED"
	TRACE_CORRUPTED    ErrorCode = "TRACE_CORRUPTED"
	TRACE_NOT_FOUND    ErrorCode = "TRACE_NOT_FOUND"
)

// Configuration error codes.
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// CoreError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints so the
// scheduler can decide whether a failed node attempt is worth repeating.
type CoreError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a CoreError with the same Code.
func (e *CoreError) Is(target error) bool {
	var coreErr *CoreError
	if errors.As(target, &coreErr) {
		return e.Code == coreErr.Code
	}
	return false
}

// NewError creates a new CoreError with the given code and message.
func NewError(code ErrorCode, message string) *CoreError {
	return &CoreError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable CoreError.
func NewRetryableError(code ErrorCode, message string) *CoreError {
	return &CoreError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError wraps an existing error with an error code and message.
func WrapError(code ErrorCode, message string, cause error) *CoreError {
	return &CoreError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err carries the given error code anywhere in its
// unwrap chain.
func IsCode(err error, code ErrorCode) bool {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Code == code
	}
	return false
}

// IsRetryable reports whether err is a CoreError marked retryable.
// Non-CoreError values are treated as retryable execution failures, matching
// the containment policy for opaque capability errors.
func IsRetryable(err error) bool {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Retryable
	}
	return err != nil
}
