// Package slug turns document titles into unique, byte-bounded output names.
package slug

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// Suffix is appended to every slug.
	Suffix = ".html"
	// DefaultMaxBytes bounds the length of a base slug, suffix included.
	DefaultMaxBytes = 30

	fallbackName = "index.html"
)

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	disallowed = regexp.MustCompile(`[^a-z0-9-]`)
	dashRun    = regexp.MustCompile(`-{2,}`)
)

// Base derives the collision-free candidate for title: lowercase, whitespace to
// hyphens, only [a-z0-9-] kept, hyphen runs collapsed and trimmed, truncated on a
// character boundary so that the name plus Suffix fits in maxBytes. An empty base
// becomes "index". When the suffix alone exceeds maxBytes the result is
// "index.html" cut to maxBytes.
func Base(title string, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	budget := maxBytes - len(Suffix)
	if budget < 0 {
		return fallbackName[:min(maxBytes, len(fallbackName))]
	}

	s := strings.ToLower(strings.TrimSpace(title))
	s = spaceRun.ReplaceAllString(s, "-")
	s = disallowed.ReplaceAllString(s, "")
	s = strings.Trim(dashRun.ReplaceAllString(s, "-"), "-")
	s = truncate(s, budget)
	s = strings.TrimRight(s, "-")
	if s == "" {
		s = truncate("index", budget)
	}
	return s + Suffix
}

func truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	n := 0
	for n < len(s) {
		_, size := utf8.DecodeRuneInString(s[n:])
		if n+size > budget {
			break
		}
		n += size
	}
	return s[:n]
}

// Set tracks slugs already handed out.
type Set struct {
	used map[string]struct{}
}

// NewSet seeds a Set with existing slugs.
func NewSet(existing []string) *Set {
	s := &Set{used: make(map[string]struct{}, len(existing))}
	for _, v := range existing {
		s.used[v] = struct{}{}
	}
	return s
}

// Contains reports whether slug is taken.
func (s *Set) Contains(slug string) bool {
	_, ok := s.used[slug]
	return ok
}

// Add marks slug as taken.
func (s *Set) Add(slug string) { s.used[slug] = struct{}{} }

// Remove releases slug.
func (s *Set) Remove(slug string) { delete(s.used, slug) }

// Len returns the number of taken slugs.
func (s *Set) Len() int { return len(s.used) }

// Sorted returns the taken slugs in lexical order.
func (s *Set) Sorted() []string {
	out := make([]string, 0, len(s.used))
	for v := range s.used {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Allocator hands out unique slugs.
type Allocator struct {
	used     *Set
	maxBytes int
}

// NewAllocator builds an Allocator over used.
func NewAllocator(used *Set, maxBytes int) *Allocator {
	if used == nil {
		used = NewSet(nil)
	}
	return &Allocator{used: used, maxBytes: maxBytes}
}

// Used exposes the underlying set.
func (a *Allocator) Used() *Set { return a.used }

// Allocate returns a slug for title that is not yet taken and records it.
// Collisions get a numeric suffix starting at 2, which may exceed the byte budget.
func (a *Allocator) Allocate(title string) string {
	candidate := Base(title, a.maxBytes)
	if !a.used.Contains(candidate) {
		a.used.Add(candidate)
		return candidate
	}
	stem := strings.TrimSuffix(candidate, Suffix)
	for n := 2; ; n++ {
		next := stem + "-" + strconv.Itoa(n) + Suffix
		if !a.used.Contains(next) {
			a.used.Add(next)
			return next
		}
	}
}
