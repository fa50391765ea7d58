package review

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
	"github.com/Jalkey-Chen/InterLines/internal/events"
	"github.com/Jalkey-Chen/InterLines/internal/graph"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

func checkpointGraph(t *testing.T) *graph.TaskGraph {
	t.Helper()
	builder := graph.NewBuilder()
	builder.AddNode(&graph.TaskNode{
		ID:              "assemble",
		Capability:      "assemble",
		DeclaredInputs:  []blackboard.Ref{{Kind: "part", Key: blackboard.WildcardKey}},
		DeclaredOutputs: []string{"final"},
		Checkpoint:      true,
	})
	builder.AddNode(&graph.TaskNode{
		ID:              "side",
		Capability:      "side",
		DeclaredInputs:  []blackboard.Ref{{Kind: "part", Key: blackboard.WildcardKey}},
		DeclaredOutputs: []string{"aside"},
	})
	g, err := builder.Build()
	require.NoError(t, err)
	return g
}

func putArtifact(t *testing.T, store *blackboard.Store, kind, key string, rev uint64) {
	t.Helper()
	err := store.Put(&blackboard.Artifact{
		Kind:          kind,
		Key:           key,
		Revision:      rev,
		SchemaVersion: "1.0.0",
		Payload:       json.RawMessage(`{"ok":true}`),
		Provenance: []blackboard.Provenance{
			{ProducedBy: key, At: time.Now().UTC()},
		},
	})
	require.NoError(t, err)
}

// recordingReviewer captures the artifact set it was invoked with.
type recordingReviewer struct {
	got    []*blackboard.Artifact
	report *Report
	err    error
}

func (r *recordingReviewer) Review(_ context.Context, artifacts []*blackboard.Artifact) (*Report, error) {
	r.got = artifacts
	return r.report, r.err
}

func TestEvaluateCollectsCheckpointOutputsOnly(t *testing.T) {
	store := blackboard.NewStore()
	defer store.Close()

	putArtifact(t, store, "final", "assemble", 1)
	putArtifact(t, store, "final", "assemble", 2)
	putArtifact(t, store, "aside", "side", 1)

	reviewer := &recordingReviewer{report: &Report{Verdict: VerdictApproved}}
	gate := NewGate(reviewer)

	report, err := gate.Evaluate(context.Background(), types.NewID(), store, checkpointGraph(t))
	require.NoError(t, err)
	assert.True(t, report.Approved())

	// Only the latest revision of the checkpoint node's declared kinds.
	require.Len(t, reviewer.got, 1)
	assert.Equal(t, "final", reviewer.got[0].Kind)
	assert.Equal(t, uint64(2), reviewer.got[0].Revision)
}

func TestEvaluateWrapsReviewerError(t *testing.T) {
	store := blackboard.NewStore()
	defer store.Close()
	putArtifact(t, store, "final", "assemble", 1)

	reviewer := &recordingReviewer{err: errors.New("reviewer offline")}
	gate := NewGate(reviewer)

	_, err := gate.Evaluate(context.Background(), types.NewID(), store, checkpointGraph(t))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.REVIEW_FAILED))
}

func TestEvaluatePublishesVerdict(t *testing.T) {
	store := blackboard.NewStore()
	defer store.Close()
	putArtifact(t, store, "final", "assemble", 1)

	bus := events.NewBus()
	defer bus.Close()
	ch, cancel := bus.Subscribe(context.Background(), events.EventReviewInvoked)
	defer cancel()

	report := &Report{
		Verdict:            VerdictDeficient,
		DeficientArtifacts: []blackboard.Ref{{Kind: "final", Key: "assemble"}},
		Detail:             json.RawMessage(`{"overall":0.4}`),
	}
	gate := NewGate(&recordingReviewer{report: report}, WithEventBus(bus))

	_, err := gate.Evaluate(context.Background(), types.NewID(), store, checkpointGraph(t))
	require.NoError(t, err)

	select {
	case ev := <-ch:
		payload, ok := ev.Payload.(events.ReviewInvokedPayload)
		require.True(t, ok)
		assert.Equal(t, string(VerdictDeficient), payload.Verdict)
		assert.Equal(t, []string{"final/assemble"}, payload.DeficientArtifacts)
		assert.JSONEq(t, `{"overall":0.4}`, string(payload.Detail))
	case <-time.After(5 * time.Second):
		t.Fatal("no review.invoked event published")
	}
}

func TestScriptedRepeatsLastReport(t *testing.T) {
	scripted := &Scripted{Reports: []*Report{
		{Verdict: VerdictDeficient},
		{Verdict: VerdictApproved},
	}}

	first, err := scripted.Review(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictDeficient, first.Verdict)

	for i := 0; i < 3; i++ {
		report, err := scripted.Review(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, VerdictApproved, report.Verdict)
	}
}

func TestScriptedDefaultsToApproved(t *testing.T) {
	report, err := (&Scripted{}).Review(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, report.Approved())
}
