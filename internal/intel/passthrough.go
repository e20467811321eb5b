package intel

import (
	"context"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// Passthrough is a backend that translates nothing and proposes no taxonomy.
type Passthrough struct{}

// Translate returns text unchanged.
func (Passthrough) Translate(_ context.Context, text string) (string, error) { return text, nil }

// Classify proposes nothing.
func (Passthrough) Classify(context.Context, string, string) (harvest.Classification, error) {
	return harvest.Classification{}, nil
}

// ExtractKeywords proposes nothing.
func (Passthrough) ExtractKeywords(context.Context, string, string, int) ([]string, error) {
	return nil, nil
}

// ChooseClosest picks locally.
func (Passthrough) ChooseClosest(_ context.Context, term string, options []string, _ string) (string, error) {
	return Closest(term, options), nil
}
