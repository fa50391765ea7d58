package blackboard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefMatches(t *testing.T) {
	tests := []struct {
		name    string
		ref     Ref
		other   Ref
		matches bool
	}{
		{"exact match", Ref{"blocks", "parse"}, Ref{"blocks", "parse"}, true},
		{"wildcard matches any key", Ref{"blocks", WildcardKey}, Ref{"blocks", "anything"}, true},
		{"kind mismatch", Ref{"blocks", WildcardKey}, Ref{"timeline", "a"}, false},
		{"key mismatch", Ref{"blocks", "parse"}, Ref{"blocks", "other"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, tt.ref.Matches(tt.other))
		})
	}
}

func TestArtifactValidate(t *testing.T) {
	confidence := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		artifact Artifact
		wantErr  bool
	}{
		{
			name:     "valid",
			artifact: Artifact{Kind: "blocks", Key: "parse", Revision: 1},
		},
		{
			name:     "empty kind",
			artifact: Artifact{Key: "parse", Revision: 1},
			wantErr:  true,
		},
		{
			name:     "wildcard key",
			artifact: Artifact{Kind: "blocks", Key: WildcardKey, Revision: 1},
			wantErr:  true,
		},
		{
			name:     "zero revision",
			artifact: Artifact{Kind: "blocks", Key: "parse"},
			wantErr:  true,
		},
		{
			name:     "confidence out of range",
			artifact: Artifact{Kind: "blocks", Key: "parse", Revision: 1, Confidence: confidence(1.5)},
			wantErr:  true,
		},
		{
			name:     "confidence in range",
			artifact: Artifact{Kind: "blocks", Key: "parse", Revision: 1, Confidence: confidence(0.5)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.artifact.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPayloadHashIsStable(t *testing.T) {
	a := &Artifact{Kind: "blocks", Key: "parse", Revision: 1, Payload: json.RawMessage(`{"n":1}`)}
	b := &Artifact{Kind: "blocks", Key: "other", Revision: 9, Payload: json.RawMessage(`{"n":1}`)}
	c := &Artifact{Kind: "blocks", Key: "parse", Revision: 1, Payload: json.RawMessage(`{"n":2}`)}

	assert.Equal(t, a.PayloadHash(), b.PayloadHash())
	assert.NotEqual(t, a.PayloadHash(), c.PayloadHash())
}
