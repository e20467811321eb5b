package vocab

import "strings"

// Kind selects the normalization rules and prompt label of a vocabulary.
type Kind int

const (
	// Category vocabularies hold title-cased multi-word terms.
	Category Kind = iota
	// Tag vocabularies hold lowercase single-token terms.
	Tag
)

// Default caps.
const (
	DefaultCategoryCap = 70
	DefaultTagCap      = 300
)

// Label names the kind for logs and prompts.
func (k Kind) Label() string {
	if k == Category {
		return "category"
	}
	return "tag"
}

// Normalize applies the kind's normalization rule.
func (k Kind) Normalize(term string) string {
	if k == Category {
		return NormalizeCategory(term)
	}
	return NormalizeTag(term)
}

// Pool is an ordered, size-bounded set of canonical terms. Lookups are case-insensitive.
type Pool struct {
	terms []string
	index map[string]int
	cap   int
}

// NewPool builds a pool holding at most limit terms, seeded with terms in order.
// Seeds beyond the limit and case-insensitive duplicates are ignored.
func NewPool(limit int, terms []string) *Pool {
	if limit < 0 {
		limit = 0
	}
	p := &Pool{index: make(map[string]int, len(terms)), cap: limit}
	for _, t := range terms {
		if t == "" || p.Full() {
			continue
		}
		if _, ok := p.Lookup(t); ok {
			continue
		}
		p.add(t)
	}
	return p
}

// Cap returns the maximum size of the pool.
func (p *Pool) Cap() int { return p.cap }

// Len returns the number of terms in the pool.
func (p *Pool) Len() int { return len(p.terms) }

// Full reports whether the pool has reached its cap.
func (p *Pool) Full() bool { return len(p.terms) >= p.cap }

// Terms returns a copy of the pool's terms in insertion order.
func (p *Pool) Terms() []string {
	out := make([]string, len(p.terms))
	copy(out, p.terms)
	return out
}

// Lookup returns the canonical spelling of term if the pool holds it.
func (p *Pool) Lookup(term string) (string, bool) {
	i, ok := p.index[strings.ToLower(term)]
	if !ok {
		return "", false
	}
	return p.terms[i], true
}

// Clone returns an independent copy of the pool.
func (p *Pool) Clone() *Pool {
	return NewPool(p.cap, p.terms)
}

// Restore replaces the pool contents with those of snapshot.
func (p *Pool) Restore(snapshot *Pool) {
	c := snapshot.Clone()
	p.terms, p.index, p.cap = c.terms, c.index, c.cap
}

func (p *Pool) add(term string) {
	p.index[strings.ToLower(term)] = len(p.terms)
	p.terms = append(p.terms, term)
}
