package intel

import "strings"

// Similarity returns 2*LCS/(len(a)+len(b)) over the lowercased runes of a and b.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(total)
}

// Closest returns the option most similar to term. Ties go to the earliest
// option; with no options term itself is returned.
func Closest(term string, options []string) string {
	if len(options) == 0 {
		return term
	}
	best := options[0]
	bestScore := -1.0
	for _, opt := range options {
		if score := Similarity(term, opt); score > bestScore {
			best, bestScore = opt, score
		}
	}
	return best
}

// MatchOption returns the option equal to answer ignoring case and surrounding
// quotes or whitespace.
func MatchOption(answer string, options []string) (string, bool) {
	a := strings.Trim(strings.TrimSpace(answer), "\"'`.")
	for _, opt := range options {
		if strings.EqualFold(a, opt) {
			return opt, true
		}
	}
	return "", false
}
