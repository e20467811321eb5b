package intel

import (
	"regexp"
	"strings"
)

// DefaultMaxKeywords caps keyword lists.
const DefaultMaxKeywords = 70

var (
	keywordDisallowed = regexp.MustCompile(`[^A-Za-z0-9\-\s]`)
	keywordSpaces     = regexp.MustCompile(`\s+`)
)

// CleanKeywords strips CJK and punctuation other than hyphens, collapses
// whitespace, lowercases, drops duplicates and keeps at most limit entries.
func CleanKeywords(raw []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxKeywords
	}
	out := make([]string, 0, min(len(raw), limit))
	seen := make(map[string]struct{}, len(raw))
	for _, k := range raw {
		k = keywordDisallowed.ReplaceAllString(StripCJK(k), " ")
		k = strings.ToLower(strings.TrimSpace(keywordSpaces.ReplaceAllString(k, " ")))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
		if len(out) == limit {
			break
		}
	}
	return out
}

func cleanTerms(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(StripCJK(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
