package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b.*?</style\s*>`)
	imgTag      = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	srcAttr     = regexp.MustCompile(`(?is)\bsrc\s*=\s*["']([^"']+)["']`)
	altAttr     = regexp.MustCompile(`(?is)\balt\s*=\s*["']([^"']*)["']`)
	anchorTag   = regexp.MustCompile(`(?is)<a\b[^>]*href\s*=\s*["']([^"']+)["'][^>]*>(.*?)</a\s*>`)
	brTag       = regexp.MustCompile(`(?i)<br\s*/?>`)
	pClose      = regexp.MustCompile(`(?i)</p\s*>`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]+>`)
)

// StripTags is the degraded HTML conversion: scripts and styles are dropped,
// images and links are kept in markdown form, every other tag is removed and
// entities are unescaped.
func StripTags(src string) string {
	s := scriptBlock.ReplaceAllString(src, "")
	s = styleBlock.ReplaceAllString(s, "")

	var refs []imageRef
	s = imgTag.ReplaceAllStringFunc(s, func(tag string) string {
		m := srcAttr.FindStringSubmatch(tag)
		if m == nil {
			return ""
		}
		alt := ""
		if a := altAttr.FindStringSubmatch(tag); a != nil {
			alt = a[1]
		}
		refs = append(refs, imageRef{url: m[1]})
		return "![" + alt + "][img-" + strconv.Itoa(len(refs)) + "]"
	})
	s = anchorTag.ReplaceAllString(s, "[$2]($1)")
	s = brTag.ReplaceAllString(s, "\n")
	s = pClose.ReplaceAllString(s, "\n\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.TrimSpace(blankLines.ReplaceAllString(s, "\n\n"))

	if len(refs) == 0 || s == "" {
		return s
	}
	defs := make([]string, len(refs))
	for i, r := range refs {
		defs[i] = imageDefinition(i+1, r)
	}
	return s + "\n\n" + strings.Join(defs, "\n")
}
