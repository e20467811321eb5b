package firecrawl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// flexInt accepts JSON numbers, numeric strings and null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("decode count %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

type statusPayload struct {
	Status    string            `json:"status"`
	Total     flexInt           `json:"total"`
	Completed flexInt           `json:"completed"`
	Next      *string           `json:"next"`
	Data      []json.RawMessage `json:"data"`
}

type pageDoc struct {
	Markdown string         `json:"markdown"`
	MD       string         `json:"md"`
	Content  string         `json:"content"`
	HTML     string         `json:"html"`
	Metadata map[string]any `json:"metadata"`
	// nested is metadata.metadata as sent, so structured descriptions keep
	// their key order and literal characters.
	nested json.RawMessage
}

type nestedMeta struct {
	Metadata struct {
		Metadata json.RawMessage `json:"metadata"`
	} `json:"metadata"`
}

// ParseStatus decodes a /v2/crawl/{id} response. Entries without a source URL
// and entries that are not objects are skipped.
func ParseStatus(body []byte) (harvest.PageBatch, error) {
	var p statusPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return harvest.PageBatch{}, harvest.Malformed("decode crawl status", err)
	}
	batch := harvest.PageBatch{
		Status:    p.Status,
		Total:     int(p.Total),
		Completed: int(p.Completed),
	}
	if p.Next != nil {
		batch.NextCursor = strings.TrimSpace(*p.Next)
	}
	for _, raw := range p.Data {
		var doc pageDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		var nm nestedMeta
		if err := json.Unmarshal(raw, &nm); err == nil {
			doc.nested = nm.Metadata.Metadata
		}
		entry, ok := doc.entry()
		if !ok {
			continue
		}
		batch.Items = append(batch.Items, entry)
	}
	return batch, nil
}

func (d pageDoc) entry() (harvest.RawEntry, bool) {
	source := stringField(d.Metadata, "sourceURL")
	if source == "" {
		source = stringField(d.Metadata, "url")
	}
	if source == "" {
		return harvest.RawEntry{}, false
	}
	md := d.Markdown
	for _, alt := range []string{d.MD, d.Content} {
		if strings.TrimSpace(md) != "" {
			break
		}
		md = alt
	}
	return harvest.RawEntry{
		SourceURL:   source,
		Title:       stringField(d.Metadata, "title"),
		Description: describe(d.Metadata, d.nested),
		Markdown:    md,
		HTML:        d.HTML,
	}, true
}

func stringField(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// describe reads the description from metadata.metadata, compacting
// structured values as sent, and falls back to metadata.description.
func describe(meta map[string]any, raw json.RawMessage) string {
	switch v := meta["metadata"].(type) {
	case nil:
	case string:
		return v
	case map[string]any, []any:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	default:
		return fmt.Sprint(v)
	}
	return stringField(meta, "description")
}
