// Package normalize turns raw crawl entries into canonical documents with a
// markdown body, a title and a description.
package normalize

import (
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// Normalize converts entry into a Document. Markdown is preferred over HTML;
// inline images are rewritten to reference style in both cases.
func Normalize(entry harvest.RawEntry) harvest.Document {
	var body string
	switch {
	case strings.TrimSpace(entry.Markdown) != "":
		body = ReferenceImages(strings.TrimSpace(entry.Markdown))
	case strings.TrimSpace(entry.HTML) != "":
		body = FromHTML(entry.HTML)
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		title = TitleFromURL(entry.SourceURL)
	}
	return harvest.Document{
		Title:       title,
		Description: strings.TrimSpace(entry.Description),
		Body:        body,
		SourceURL:   entry.SourceURL,
	}
}

// FromHTML renders src as markdown. When rendering fails or yields nothing it
// degrades to tag stripping, and finally to the trimmed source itself.
func FromHTML(src string) string {
	md, err := HTMLToMarkdown(src)
	if err == nil && md != "" {
		return md
	}
	if stripped := StripTags(src); stripped != "" {
		return stripped
	}
	return strings.TrimSpace(src)
}

// TitleFromURL derives a title from the last path segment of raw, hyphens
// becoming spaces, or from the host when the path is empty.
func TitleFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	segment := path.Base(strings.TrimRight(u.Path, "/"))
	if segment == "." || segment == "/" || segment == "" {
		if u.Host != "" {
			return u.Host
		}
		return strings.TrimSpace(raw)
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	return strings.TrimSpace(strings.ReplaceAll(segment, "-", " "))
}
