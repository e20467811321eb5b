package vocab

import (
	"context"

	"go.uber.org/zap"
)

// Chooser maps a term onto one of options. Implementations never fail; when
// options is empty they return term.
type Chooser interface {
	ChooseClosest(ctx context.Context, term string, options []string, label string) string
}

// Reconciler folds proposed terms into pools.
type Reconciler struct {
	chooser Chooser
	logger  *zap.Logger
}

// NewReconciler builds a Reconciler that consults chooser once a pool is full.
func NewReconciler(chooser Chooser, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{chooser: chooser, logger: logger}
}

// Reconcile normalizes each proposed term and returns the canonical pool terms
// selected for it, in proposal order without duplicates. New terms are admitted
// while the pool has room; afterwards they are mapped to the closest existing term.
func (r *Reconciler) Reconcile(ctx context.Context, proposed []string, pool *Pool, kind Kind) []string {
	selected := make([]string, 0, len(proposed))
	seen := make(map[string]struct{}, len(proposed))
	pick := func(term string) {
		if _, dup := seen[term]; dup {
			return
		}
		seen[term] = struct{}{}
		selected = append(selected, term)
	}

	for _, raw := range proposed {
		term := kind.Normalize(raw)
		if term == "" {
			continue
		}
		if canonical, ok := pool.Lookup(term); ok {
			pick(canonical)
			continue
		}
		if !pool.Full() {
			pool.add(term)
			pick(term)
			continue
		}
		if r.chooser == nil || pool.Len() == 0 {
			r.logger.Debug("dropping term, pool full", zap.String("kind", kind.Label()), zap.String("term", term))
			continue
		}
		answer := r.chooser.ChooseClosest(ctx, term, pool.Terms(), kind.Label())
		canonical, ok := pool.Lookup(answer)
		if !ok {
			r.logger.Warn("closest term not in pool",
				zap.String("kind", kind.Label()),
				zap.String("term", term),
				zap.String("answer", answer),
			)
			continue
		}
		pick(canonical)
	}
	return selected
}
