package vocab

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	categoryDisallowed = regexp.MustCompile(`[^a-z0-9\-_.\s]`)
	tagDisallowed      = regexp.MustCompile(`[^a-z0-9\-_.]`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	dashRun            = regexp.MustCompile(`-{2,}`)
)

// NormalizeCategory lowercases term, drops disallowed characters, collapses
// whitespace and capitalizes each space-separated word: only its first
// character is upper-cased, so "3d printing" stays "3d Printing". The result
// may be empty.
func NormalizeCategory(term string) string {
	s := strings.ToLower(strings.TrimSpace(term))
	s = categoryDisallowed.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	if s == "" {
		return ""
	}
	upper := cases.Upper(language.Und)
	words := strings.Split(s, " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = upper.String(string(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// NormalizeTag lowercases term, drops every character outside [a-z0-9-_.]
// (whitespace included) and collapses runs of hyphens. The result may be empty.
func NormalizeTag(term string) string {
	s := strings.ToLower(strings.TrimSpace(term))
	s = tagDisallowed.ReplaceAllString(s, "")
	return dashRun.ReplaceAllString(s, "-")
}
