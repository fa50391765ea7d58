package planner

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DocumentProfile drives capability selection for the initial plan.
// It is produced once per run by the external classification capability
// before the first Plan call.
type DocumentProfile struct {
	// DocKind is the coarse document category, e.g. "legal", "policy",
	// "academic", "generic".
	DocKind string `json:"doc_kind"`

	// Language is the document's primary language tag.
	Language string `json:"language"`

	// LengthClass is "short", "medium", or "long".
	LengthClass string `json:"length_class"`

	// HasHistoricalContext enables the timeline capability.
	HasHistoricalContext bool `json:"has_historical_context"`
}

// Classifier is the external classification collaborator.
type Classifier interface {
	// Classify derives a document profile from the raw document.
	Classify(ctx context.Context, rawDocument []byte) (*DocumentProfile, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, rawDocument []byte) (*DocumentProfile, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, rawDocument []byte) (*DocumentProfile, error) {
	return f(ctx, rawDocument)
}

var yearPattern = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)

// HeuristicClassifier profiles a document from surface features alone. It is
// the fallback when no model-backed classifier is configured: length class
// from rune count, historical context from the density of year references.
func HeuristicClassifier() Classifier {
	return ClassifierFunc(func(_ context.Context, rawDocument []byte) (*DocumentProfile, error) {
		text := string(rawDocument)

		lengthClass := "short"
		switch n := utf8.RuneCountInString(text); {
		case n > 20000:
			lengthClass = "long"
		case n > 3000:
			lengthClass = "medium"
		}

		docKind := "generic"
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "whereas") || strings.Contains(lower, "hereinafter"):
			docKind = "legal"
		case strings.Contains(lower, "abstract") && strings.Contains(lower, "references"):
			docKind = "academic"
		case strings.Contains(lower, "regulation") || strings.Contains(lower, "directive"):
			docKind = "policy"
		}

		return &DocumentProfile{
			DocKind:              docKind,
			Language:             "en",
			LengthClass:          lengthClass,
			HasHistoricalContext: len(yearPattern.FindAllString(text, 3)) >= 3,
		}, nil
	})
}
