package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Jalkey-Chen/InterLines/internal/blackboard"
)

// Artifact kinds used by the built-in public-translation pipeline.
const (
	KindRawDocument = "raw_document"
	KindBlocks      = "blocks"
	KindExplanation = "explanation"
	KindTimeline    = "timeline"
	KindNarrative   = "narrative"
	KindPublicBrief = "public_brief"
	KindReviewNote  = "review_note"
)

// Capability names used by the built-in pipeline.
const (
	CapabilityParse    = "parse"
	CapabilityExplain  = "explain"
	CapabilityTimeline = "timeline"
	CapabilityNarrate  = "narrate"
	CapabilityBrief    = "brief"
)

// Explanation levels produced by the explain capability.
const (
	LevelOneSentence    = "one_sentence"
	LevelThreeParagraph = "three_paragraph"
	LevelDeepDive       = "deep_dive"
)

// BlocksPayload is the parse capability's output payload.
type BlocksPayload struct {
	Blocks []string `json:"blocks"`
}

// ExplanationCard is one entry in the explain capability's output payload.
type ExplanationCard struct {
	Level     string `json:"level"`
	Claim     string `json:"claim"`
	Rationale string `json:"rationale"`
}

// ExplanationPayload is the explain capability's output payload.
type ExplanationPayload struct {
	Cards []ExplanationCard `json:"cards"`
}

// TimelinePayload is the timeline capability's output payload.
type TimelinePayload struct {
	Events []string `json:"events"`
}

// NarrativePayload is the narrate capability's output payload.
type NarrativePayload struct {
	Text string `json:"text"`
}

// BriefSection is one section of the assembled public brief.
type BriefSection struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BriefPayload is the brief capability's output payload.
type BriefPayload struct {
	Title    string         `json:"title"`
	Summary  string         `json:"summary"`
	Sections []BriefSection `json:"sections"`
}

// RegisterBuiltins registers the in-process stub pipeline capabilities used by
// tests and the CLI demo mode. Production deployments register remote
// capability providers instead; the engine cannot tell the difference.
func RegisterBuiltins(r *Registry) error {
	builtins := []Capability{
		Func{CapabilityName: CapabilityParse, Fn: parseCapability},
		Func{CapabilityName: CapabilityExplain, Fn: explainCapability},
		Func{CapabilityName: CapabilityTimeline, Fn: timelineCapability},
		Func{CapabilityName: CapabilityNarrate, Fn: narrateCapability},
		Func{CapabilityName: CapabilityBrief, Fn: briefCapability},
	}
	for _, c := range builtins {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func inputOfKind(inputs []*blackboard.Artifact, kind string) (*blackboard.Artifact, error) {
	for _, in := range inputs {
		if in.Kind == kind {
			return in, nil
		}
	}
	return nil, fmt.Errorf("required input of kind %q not supplied", kind)
}

// parseCapability splits the raw document into paragraph-like blocks.
func parseCapability(_ context.Context, inputs []*blackboard.Artifact) ([]Output, error) {
	raw, err := inputOfKind(inputs, KindRawDocument)
	if err != nil {
		return nil, err
	}

	var text string
	if err := json.Unmarshal(raw.Payload, &text); err != nil {
		return nil, fmt.Errorf("raw document payload must be a JSON string: %w", err)
	}

	var blocks []string
	for _, para := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(para); trimmed != "" {
			blocks = append(blocks, trimmed)
		}
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("document contains no non-empty blocks")
	}

	payload, err := json.Marshal(BlocksPayload{Blocks: blocks})
	if err != nil {
		return nil, err
	}

	confidence := 0.95
	return []Output{{
		Kind:          KindBlocks,
		SchemaVersion: "1.0.0",
		Payload:       payload,
		Confidence:    &confidence,
		Note:          fmt.Sprintf("parsed %d blocks", len(blocks)),
	}}, nil
}

// explainCapability produces one explanation card per level from the blocks.
func explainCapability(_ context.Context, inputs []*blackboard.Artifact) ([]Output, error) {
	blocksArtifact, err := inputOfKind(inputs, KindBlocks)
	if err != nil {
		return nil, err
	}

	var blocks BlocksPayload
	if err := json.Unmarshal(blocksArtifact.Payload, &blocks); err != nil {
		return nil, fmt.Errorf("invalid blocks payload: %w", err)
	}
	if len(blocks.Blocks) == 0 {
		return nil, fmt.Errorf("blocks payload contains no blocks")
	}

	lead := firstSentence(blocks.Blocks[0])
	cards := []ExplanationCard{
		{Level: LevelOneSentence, Claim: lead, Rationale: lead},
		{Level: LevelThreeParagraph, Claim: lead, Rationale: strings.Join(headBlocks(blocks.Blocks, 3), " ")},
		{Level: LevelDeepDive, Claim: lead, Rationale: strings.Join(blocks.Blocks, " ")},
	}

	payload, err := json.Marshal(ExplanationPayload{Cards: cards})
	if err != nil {
		return nil, err
	}

	confidence := 0.7
	return []Output{{
		Kind:          KindExplanation,
		SchemaVersion: "1.0.0",
		Payload:       payload,
		Confidence:    &confidence,
	}}, nil
}

// timelineCapability extracts a naive event list, one per block.
func timelineCapability(_ context.Context, inputs []*blackboard.Artifact) ([]Output, error) {
	blocksArtifact, err := inputOfKind(inputs, KindBlocks)
	if err != nil {
		return nil, err
	}

	var blocks BlocksPayload
	if err := json.Unmarshal(blocksArtifact.Payload, &blocks); err != nil {
		return nil, fmt.Errorf("invalid blocks payload: %w", err)
	}

	events := make([]string, 0, len(blocks.Blocks))
	for i, block := range blocks.Blocks {
		events = append(events, fmt.Sprintf("event %d: %s", i+1, firstSentence(block)))
	}

	payload, err := json.Marshal(TimelinePayload{Events: events})
	if err != nil {
		return nil, err
	}

	confidence := 0.6
	return []Output{{
		Kind:          KindTimeline,
		SchemaVersion: "1.0.0",
		Payload:       payload,
		Confidence:    &confidence,
	}}, nil
}

// narrateCapability weaves explanation cards (and a timeline when present)
// into a single narrative.
func narrateCapability(_ context.Context, inputs []*blackboard.Artifact) ([]Output, error) {
	explArtifact, err := inputOfKind(inputs, KindExplanation)
	if err != nil {
		return nil, err
	}

	var expl ExplanationPayload
	if err := json.Unmarshal(explArtifact.Payload, &expl); err != nil {
		return nil, fmt.Errorf("invalid explanation payload: %w", err)
	}

	var parts []string
	for _, card := range expl.Cards {
		if card.Level == LevelThreeParagraph {
			parts = append(parts, card.Rationale)
		}
	}

	if tl, err := inputOfKind(inputs, KindTimeline); err == nil {
		var timeline TimelinePayload
		if err := json.Unmarshal(tl.Payload, &timeline); err == nil && len(timeline.Events) > 0 {
			parts = append(parts, "Timeline: "+strings.Join(timeline.Events, "; "))
		}
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("nothing to narrate")
	}

	payload, err := json.Marshal(NarrativePayload{Text: strings.Join(parts, "\n\n")})
	if err != nil {
		return nil, err
	}

	confidence := 0.65
	return []Output{{
		Kind:          KindNarrative,
		SchemaVersion: "1.0.0",
		Payload:       payload,
		Confidence:    &confidence,
	}}, nil
}

// briefCapability assembles the final public brief from the narrative and the
// explanation cards.
func briefCapability(_ context.Context, inputs []*blackboard.Artifact) ([]Output, error) {
	narrArtifact, err := inputOfKind(inputs, KindNarrative)
	if err != nil {
		return nil, err
	}
	explArtifact, err := inputOfKind(inputs, KindExplanation)
	if err != nil {
		return nil, err
	}

	var narrative NarrativePayload
	if err := json.Unmarshal(narrArtifact.Payload, &narrative); err != nil {
		return nil, fmt.Errorf("invalid narrative payload: %w", err)
	}
	var expl ExplanationPayload
	if err := json.Unmarshal(explArtifact.Payload, &expl); err != nil {
		return nil, fmt.Errorf("invalid explanation payload: %w", err)
	}

	title := "Public Brief"
	summary := ""
	deepDive := ""
	for _, card := range expl.Cards {
		switch card.Level {
		case LevelOneSentence:
			title = card.Claim
			summary = card.Rationale
		case LevelDeepDive:
			deepDive = card.Rationale
		}
	}

	brief := BriefPayload{
		Title:   title,
		Summary: summary,
		Sections: []BriefSection{
			{ID: "narrative", Title: "Narrative", Content: narrative.Text},
			{ID: "deep_dive", Title: "Deep-dive commentary", Content: deepDive},
		},
	}

	payload, err := json.Marshal(brief)
	if err != nil {
		return nil, err
	}

	confidence := 0.7
	return []Output{{
		Kind:          KindPublicBrief,
		SchemaVersion: "1.0.0",
		Payload:       payload,
		Confidence:    &confidence,
	}}, nil
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".!?"); idx >= 0 {
		return strings.TrimSpace(s[:idx+1])
	}
	return strings.TrimSpace(s)
}

func headBlocks(blocks []string, n int) []string {
	if len(blocks) < n {
		return blocks
	}
	return blocks[:n]
}
