package document

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Ext is appended to every document path.
const Ext = ".md"

const unknownDomain = "unknown-domain"

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_\-/().]`)

// PathFor mirrors sourceURL as a slash-separated relative path of the form
// <host>/<url path>.md. Dot-segments are resolved, a path ending in "/" maps to
// "index", query strings are ignored and unsafe characters become "-".
func PathFor(sourceURL string) string {
	host := unknownDomain
	p := "/"
	if u, err := url.Parse(strings.TrimSpace(sourceURL)); err == nil {
		if h := u.Hostname(); h != "" {
			host = h
		}
		if u.Path != "" {
			p = u.Path
		}
	}
	index := strings.HasSuffix(p, "/")
	// Rooted cleaning resolves dot-segments and cannot climb above the host.
	p = path.Clean("/" + p)
	if index || p == "/" {
		p = strings.TrimSuffix(p, "/") + "/index"
	}
	p = unsafePathChars.ReplaceAllString(p, "-")

	dir, file := path.Split(p)
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return host + "/" + file + Ext
	}
	return host + "/" + dir + "/" + file + Ext
}
