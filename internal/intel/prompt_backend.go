package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// Completer sends a prompt to a language model and returns the raw completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PromptBackend implements harvest.Intelligence on top of a Completer.
type PromptBackend struct {
	completer Completer
}

// NewPromptBackend wraps completer.
func NewPromptBackend(completer Completer) *PromptBackend {
	return &PromptBackend{completer: completer}
}

// Translate returns the model's English rendering of text.
func (b *PromptBackend) Translate(ctx context.Context, text string) (string, error) {
	out, err := b.completer.Complete(ctx, TranslatePrompt(text))
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", harvest.Malformed("translate", errors.New("empty completion"))
	}
	return out, nil
}

// Classify returns the categories and tags proposed by the model.
func (b *PromptBackend) Classify(ctx context.Context, title, body string) (harvest.Classification, error) {
	out, err := b.completer.Complete(ctx, ClassifyPrompt(title, body))
	if err != nil {
		return harvest.Classification{}, fmt.Errorf("classify: %w", err)
	}
	return ParseClassification(out)
}

// ExtractKeywords returns the keywords proposed by the model.
func (b *PromptBackend) ExtractKeywords(ctx context.Context, title, body string, limit int) ([]string, error) {
	out, err := b.completer.Complete(ctx, KeywordsPrompt(title, body, limit))
	if err != nil {
		return nil, fmt.Errorf("extract keywords: %w", err)
	}
	return ParseKeywords(out)
}

// ChooseClosest returns the model's raw pick; callers validate it against options.
func (b *PromptBackend) ChooseClosest(ctx context.Context, term string, options []string, label string) (string, error) {
	out, err := b.completer.Complete(ctx, ChoosePrompt(term, options, label))
	if err != nil {
		return "", fmt.Errorf("choose closest: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// stringList accepts either a JSON array of strings or a comma separated string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = items
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	for _, part := range strings.Split(joined, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// ParseClassification decodes the first JSON object in a completion.
func ParseClassification(completion string) (harvest.Classification, error) {
	raw, ok := ExtractJSONObject(completion)
	if !ok {
		return harvest.Classification{}, harvest.Malformed("classify", errors.New("no json object in completion"))
	}
	var payload struct {
		Categories stringList `json:"categories"`
		Tags       stringList `json:"tags"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return harvest.Classification{}, harvest.Malformed("classify", err)
	}
	return harvest.Classification{Categories: payload.Categories, Tags: payload.Tags}, nil
}

// ParseKeywords decodes the first JSON array in a completion, or the
// "keywords" field of an object.
func ParseKeywords(completion string) ([]string, error) {
	if raw, ok := ExtractJSONArray(completion); ok {
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return items, nil
		}
	}
	if raw, ok := ExtractJSONObject(completion); ok {
		var payload struct {
			Keywords stringList `json:"keywords"`
		}
		if err := json.Unmarshal([]byte(raw), &payload); err == nil && len(payload.Keywords) > 0 {
			return payload.Keywords, nil
		}
	}
	return nil, harvest.Malformed("extract keywords", errors.New("no json array in completion"))
}
