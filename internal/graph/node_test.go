package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
)

func TestCalculateDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{
			name: "constant ignores attempt",
			policy: RetryPolicy{
				BackoffStrategy: BackoffConstant,
				InitialDelay:    time.Second,
			},
			attempt: 5,
			want:    time.Second,
		},
		{
			name: "linear grows with attempt",
			policy: RetryPolicy{
				BackoffStrategy: BackoffLinear,
				InitialDelay:    time.Second,
			},
			attempt: 2,
			want:    3 * time.Second,
		},
		{
			name: "exponential first retry",
			policy: RetryPolicy{
				BackoffStrategy: BackoffExponential,
				InitialDelay:    200 * time.Millisecond,
				MaxDelay:        5 * time.Second,
				Multiplier:      2.0,
			},
			attempt: 1,
			want:    400 * time.Millisecond,
		},
		{
			name: "exponential capped at max delay",
			policy: RetryPolicy{
				BackoffStrategy: BackoffExponential,
				InitialDelay:    200 * time.Millisecond,
				MaxDelay:        5 * time.Second,
				Multiplier:      2.0,
			},
			attempt: 10,
			want:    5 * time.Second,
		},
		{
			name: "unknown strategy falls back to initial delay",
			policy: RetryPolicy{
				BackoffStrategy: BackoffStrategy("fibonacci"),
				InitialDelay:    time.Second,
			},
			attempt: 3,
			want:    time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.CalculateDelay(tt.attempt))
		})
	}
}

func TestNodeStatusIsTerminal(t *testing.T) {
	terminal := []NodeStatus{
		NodeStatusSucceeded,
		NodeStatusFailed,
		NodeStatusSkipped,
		NodeStatusCancelled,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	nonTerminal := []NodeStatus{
		NodeStatusPending,
		NodeStatusReady,
		NodeStatusRunning,
		NodeStatusTimedOut,
	}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	require.NotNil(t, p)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, BackoffExponential, p.BackoffStrategy)
	assert.Equal(t, 200*time.Millisecond, p.InitialDelay)
}

func TestTaskNodeKinds(t *testing.T) {
	node := &TaskNode{
		ID:         "explain",
		Capability: "explain",
		DeclaredInputs: []blackboard.Ref{
			{Kind: "clause_map", Key: blackboard.WildcardKey},
		},
		DeclaredOutputs: []string{"explanation"},
	}

	assert.True(t, node.ConsumesKind("clause_map"))
	assert.False(t, node.ConsumesKind("explanation"))
	assert.True(t, node.ProducesKind("explanation"))
	assert.False(t, node.ProducesKind("clause_map"))
}

func TestTaskNodeCloneIsDeep(t *testing.T) {
	node := &TaskNode{
		ID:              "parse",
		Capability:      "parse",
		DeclaredInputs:  []blackboard.Ref{{Kind: "document", Key: "seed"}},
		DeclaredOutputs: []string{"clause_map"},
		RetryPolicy:     DefaultRetryPolicy(),
	}

	cp := node.Clone()
	cp.DeclaredInputs[0].Kind = "other"
	cp.DeclaredOutputs[0] = "other"
	cp.RetryPolicy.MaxAttempts = 99

	assert.Equal(t, "document", node.DeclaredInputs[0].Kind)
	assert.Equal(t, "clause_map", node.DeclaredOutputs[0])
	assert.Equal(t, 3, node.RetryPolicy.MaxAttempts)
}
