package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	inlineImage   = regexp.MustCompile(`!\[([^\]]*)\]\(\s*([^)\s]+)(?:\s+"([^"]*)")?\s*\)`)
	existingImgID = regexp.MustCompile(`(?m)^\[img-(\d+)\]:`)
)

// ReferenceImages rewrites inline markdown images to reference style,
// numbering after any img-N definitions already present.
func ReferenceImages(md string) string {
	next := 1
	for _, m := range existingImgID.FindAllStringSubmatch(md, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= next {
			next = n + 1
		}
	}

	var defs []string
	out := inlineImage.ReplaceAllStringFunc(md, func(match string) string {
		parts := inlineImage.FindStringSubmatch(match)
		id := next
		next++
		defs = append(defs, imageDefinition(id, imageRef{url: parts[2], title: parts[3]}))
		return "![" + parts[1] + "][img-" + strconv.Itoa(id) + "]"
	})
	if len(defs) == 0 {
		return md
	}
	return strings.TrimRight(out, "\n") + "\n\n" + strings.Join(defs, "\n")
}
