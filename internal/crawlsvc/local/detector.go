package local

import (
	"bytes"
	"net/http"
)

// DefaultBodyThreshold is the body size under which a script-heavy page is
// considered an unrendered shell.
const DefaultBodyThreshold = 2048

// Detector decides whether a statically fetched page needs a browser render.
type Detector struct {
	BodyThreshold int
}

// NewDetector returns a Detector; a zero threshold uses DefaultBodyThreshold.
func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultBodyThreshold
	}
	return &Detector{BodyThreshold: threshold}
}

var shellMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// NeedsRender reports whether body looks like a client-side rendered shell.
// Only successful responses are considered.
func (d *Detector) NeedsRender(status int, body []byte) bool {
	if status != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(body) < d.BodyThreshold && scriptShare(body) >= 25 {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of body covered by <script> elements.
// An unterminated tag covers the rest of the document.
func scriptShare(body []byte) int {
	lower := bytes.ToLower(body)
	if len(lower) == 0 {
		return 0
	}
	openTag := []byte("<script")
	closeTag := []byte("</script>")

	covered := 0
	pos := 0
	for pos < len(lower) {
		rel := bytes.Index(lower[pos:], openTag)
		if rel < 0 {
			break
		}
		start := pos + rel
		end := len(lower)
		if gt := bytes.IndexByte(lower[start:], '>'); gt >= 0 {
			contentStart := start + gt + 1
			if c := bytes.Index(lower[contentStart:], closeTag); c >= 0 {
				end = contentStart + c + len(closeTag)
			}
		}
		covered += end - start
		pos = end
	}
	return covered * 100 / len(lower)
}
