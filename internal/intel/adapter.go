package intel

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// Pacer spaces out calls to a backend.
type Pacer interface {
	Wait(ctx context.Context, key string) error
}

// Adapter wraps a backend so that no call fails.
type Adapter struct {
	backend     harvest.Intelligence
	logger      *zap.Logger
	pacer       Pacer
	pacerKey    string
	maxKeywords int
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithPacer makes every backend call wait on pacer first, keyed by key.
func WithPacer(pacer Pacer, key string) Option {
	return func(a *Adapter) {
		a.pacer = pacer
		a.pacerKey = key
	}
}

// WithMaxKeywords overrides DefaultMaxKeywords.
func WithMaxKeywords(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxKeywords = n
		}
	}
}

// NewAdapter wraps backend. A nil backend behaves like Passthrough.
func NewAdapter(backend harvest.Intelligence, logger *zap.Logger, opts ...Option) *Adapter {
	if backend == nil {
		backend = Passthrough{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{backend: backend, logger: logger, maxKeywords: DefaultMaxKeywords}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MaxKeywords returns the keyword cap.
func (a *Adapter) MaxKeywords() int { return a.maxKeywords }

func (a *Adapter) pace(ctx context.Context) error {
	if a.pacer == nil {
		return nil
	}
	return a.pacer.Wait(ctx, a.pacerKey)
}

func (a *Adapter) warn(op string, err error) {
	level := a.logger.Warn
	if errors.Is(err, context.Canceled) {
		level = a.logger.Debug
	}
	level("intelligence call failed, using fallback",
		zap.String("op", op),
		zap.Bool("malformed", errors.Is(err, harvest.ErrMalformedResponse)),
		zap.Error(err),
	)
}

// Translate returns text in English with CJK removed, or text itself when the
// backend fails or answers with nothing usable.
func (a *Adapter) Translate(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if err := a.pace(ctx); err != nil {
		a.warn("translate", err)
		return text
	}
	out, err := a.backend.Translate(ctx, text)
	if err != nil {
		a.warn("translate", err)
		return text
	}
	out = strings.TrimSpace(StripCJK(out))
	if out == "" {
		return text
	}
	return out
}

// Classify returns the proposed taxonomy with CJK removed, or an empty
// classification on failure.
func (a *Adapter) Classify(ctx context.Context, title, body string) harvest.Classification {
	if err := a.pace(ctx); err != nil {
		a.warn("classify", err)
		return harvest.Classification{}
	}
	cls, err := a.backend.Classify(ctx, title, body)
	if err != nil {
		a.warn("classify", err)
		return harvest.Classification{}
	}
	return harvest.Classification{
		Categories: cleanTerms(cls.Categories),
		Tags:       cleanTerms(cls.Tags),
	}
}

// ExtractKeywords returns cleaned keywords, or nil on failure.
func (a *Adapter) ExtractKeywords(ctx context.Context, title, body string) []string {
	if err := a.pace(ctx); err != nil {
		a.warn("keywords", err)
		return nil
	}
	raw, err := a.backend.ExtractKeywords(ctx, title, body, a.maxKeywords)
	if err != nil {
		a.warn("keywords", err)
		return nil
	}
	return CleanKeywords(raw, a.maxKeywords)
}

// ChooseClosest returns one of options for term. The backend's pick is used
// when it names an option; otherwise the local similarity match is.
func (a *Adapter) ChooseClosest(ctx context.Context, term string, options []string, label string) string {
	if len(options) == 0 {
		return term
	}
	if err := a.pace(ctx); err != nil {
		a.warn("choose", err)
		return Closest(term, options)
	}
	answer, err := a.backend.ChooseClosest(ctx, term, options, label)
	if err != nil {
		a.warn("choose", err)
		return Closest(term, options)
	}
	if opt, ok := MatchOption(answer, options); ok {
		return opt
	}
	a.logger.Debug("closest answer not an option", zap.String("term", term), zap.String("answer", answer))
	return Closest(term, options)
}
