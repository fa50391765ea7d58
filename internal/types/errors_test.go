package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreErrorFormatting(t *testing.T) {
	plain := NewError(BLACKBOARD_NOT_FOUND, "no such artifact")
	assert.Equal(t, "[BLACKBOARD_NOT_FOUND] no such artifact", plain.Error())

	wrapped := WrapError(TRACE_CORRUPTED, "bad entry", errors.New("unexpected EOF"))
	assert.Equal(t, "[TRACE_CORRUPTED] bad entry: unexpected EOF", wrapped.Error())
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(TRACE_WRITE_FAILED, "cannot append", cause)

	assert.ErrorIs(t, err, cause)

	outer := fmt.Errorf("run aborted: %w", err)
	assert.True(t, IsCode(outer, TRACE_WRITE_FAILED))
	assert.False(t, IsCode(outer, TRACE_CORRUPTED))
	assert.False(t, IsCode(nil, TRACE_WRITE_FAILED))
}

func TestIsMatchesByCode(t *testing.T) {
	a := NewError(RUN_CANCELLED, "first")
	b := NewError(RUN_CANCELLED, "second")
	c := NewError(REVIEW_FAILED, "other")

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryableError(NODE_TIMEOUT, "slow")))
	assert.False(t, IsRetryable(NewError(CAPABILITY_NOT_FOUND, "missing")))
	assert.False(t, IsRetryable(nil))

	// Opaque errors are treated as retryable execution failures.
	assert.True(t, IsRetryable(errors.New("connection reset")))

	// Wrapping preserves the inner retryability hint.
	inner := NewRetryableError(AGENT_EXECUTION_FAILED, "transient")
	assert.True(t, IsRetryable(fmt.Errorf("attempt 1: %w", inner)))
}

func TestIDRoundTrip(t *testing.T) {
	id := NewID()
	require.NoError(t, id.Validate())
	assert.False(t, id.IsZero())

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseID("not-a-uuid")
	assert.Error(t, err)
}

func TestIDJSON(t *testing.T) {
	id := NewID()
	data, err := id.MarshalJSON()
	require.NoError(t, err)

	var decoded ID
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, id, decoded)
}

func TestRunStatusTerminality(t *testing.T) {
	for _, s := range []RunStatus{RunStatusSucceeded, RunStatusPartialSuccess, RunStatusFailed, RunStatusCancelled} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []RunStatus{RunStatusPending, RunStatusRunning} {
		assert.False(t, s.IsTerminal(), s)
	}
}
