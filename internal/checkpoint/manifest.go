// Package checkpoint persists the pipeline's progress manifest so an
// interrupted run can resume.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultKey names the manifest row in keyed backends.
const DefaultKey = "default"

// Manifest is the durable record of a run.
type Manifest struct {
	PagesProcessed    int       `json:"pagesProcessed"`
	Files             []string  `json:"files"`
	UsedSlugs         []string  `json:"usedSlugs"`
	CategoryPool      []string  `json:"categoryPool"`
	TagPool           []string  `json:"tagPool"`
	LastAllocatedSlug *string   `json:"lastAllocatedSlug"`
	PendingCursor     *string   `json:"pendingCursor"`
	StartURL          string    `json:"startUrl,omitempty"`
	JobID             string    `json:"jobId,omitempty"`
	CrawlBackend      string    `json:"crawlBackend,omitempty"`
	IntelBackend      string    `json:"intelBackend,omitempty"`
	RunID             string    `json:"runId,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
	Done              bool      `json:"done"`
}

// Store loads and saves a single manifest.
type Store interface {
	// Load returns the saved manifest and true, or false when none exists yet.
	Load(ctx context.Context) (Manifest, bool, error)
	// Save replaces the stored manifest atomically.
	Save(ctx context.Context, m Manifest) error
	Close() error
}

// Clone returns a deep copy of m.
func (m Manifest) Clone() Manifest {
	c := m
	c.Files = cloneStrings(m.Files)
	c.UsedSlugs = cloneStrings(m.UsedSlugs)
	c.CategoryPool = cloneStrings(m.CategoryPool)
	c.TagPool = cloneStrings(m.TagPool)
	c.LastAllocatedSlug = cloneString(m.LastAllocatedSlug)
	c.PendingCursor = cloneString(m.PendingCursor)
	return c
}

// Cursor returns the pending cursor or "".
func (m Manifest) Cursor() string {
	if m.PendingCursor == nil {
		return ""
	}
	return *m.PendingCursor
}

// PrevSlug returns the last allocated slug or "".
func (m Manifest) PrevSlug() string {
	if m.LastAllocatedSlug == nil {
		return ""
	}
	return *m.LastAllocatedSlug
}

// Repair replaces nil collections with empty ones and realigns
// PagesProcessed with Files. It reports whether anything had to be fixed
// beyond nil collections.
func (m *Manifest) Repair(logger *zap.Logger) bool {
	if m.Files == nil {
		m.Files = []string{}
	}
	if m.UsedSlugs == nil {
		m.UsedSlugs = []string{}
	}
	if m.CategoryPool == nil {
		m.CategoryPool = []string{}
	}
	if m.TagPool == nil {
		m.TagPool = []string{}
	}
	if m.PagesProcessed == len(m.Files) {
		return false
	}
	if logger != nil {
		logger.Warn("manifest page count disagrees with file list, repairing",
			zap.Int("pages_processed", m.PagesProcessed),
			zap.Int("files", len(m.Files)),
		)
	}
	m.PagesProcessed = len(m.Files)
	return true
}

// Encode renders m as indented JSON.
func Encode(m Manifest) ([]byte, error) {
	m.Repair(nil)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a manifest produced by Encode.
func Decode(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// StringPtr returns a pointer to s, or nil for "".
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
