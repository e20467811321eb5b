package intel

import "strings"

// ExtractJSONObject returns the first balanced JSON object in text, ignoring
// code fences and surrounding prose.
func ExtractJSONObject(text string) (string, bool) {
	return extractBalanced(stripFences(text), '{', '}')
}

// ExtractJSONArray returns the first balanced JSON array in text.
func ExtractJSONArray(text string) (string, bool) {
	return extractBalanced(stripFences(text), '[', ']')
}

func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimLeft(trimmed, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		trimmed = strings.TrimSpace(trimmed)
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}

func extractBalanced(text string, open, closing rune) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escape := false
	for i, r := range text {
		if start == -1 {
			if r == open {
				start = i
				depth = 1
			}
			continue
		}
		if inString {
			switch {
			case escape:
				escape = false
			case r == '\\':
				escape = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
