package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() Summary {
	start := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	return Summary{
		RunID:          "0196-run",
		StartURL:       "https://example.com",
		JobID:          "job-1",
		CrawlBackend:   "firecrawl",
		IntelBackend:   "ollama",
		State:          "DONE",
		StartedAt:      start,
		FinishedAt:     start.Add(90 * time.Second),
		PagesProcessed: 12,
		Written:        10,
		Skipped:        2,
		FilesTotal:     12,
		Categories:     []string{"Web Development", "Databases"},
		CategoryCap:    70,
		Tags:           []string{"go"},
		TagCap:         300,
		Done:           true,
	}
}

func TestRenderCompletedRun(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleSummary())
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "# Harvest Summary")
	assert.Contains(t, text, "https://example.com")
	assert.Contains(t, text, "firecrawl / ollama")
	assert.Contains(t, text, "1m30s")
	assert.Contains(t, text, "[!TIP]")
	assert.Contains(t, text, "## Categories (2/70)")
	assert.Contains(t, text, "Web Development, Databases")
	assert.Contains(t, text, "## Tags (1/300)")
	assert.Contains(t, text, "mermaid")
}

func TestRenderStatusVariants(t *testing.T) {
	t.Parallel()

	paused := sampleSummary()
	paused.Done = false
	paused.PendingCursor = "https://crawl/v2/crawl/job-1?skip=10"
	out, err := Render(paused)
	require.NoError(t, err)
	assert.Contains(t, string(out), "[!IMPORTANT]")
	assert.Contains(t, string(out), paused.PendingCursor)
	assert.True(t, paused.Resumable())

	partial := sampleSummary()
	partial.Failed = 1
	out, err = Render(partial)
	require.NoError(t, err)
	assert.Contains(t, string(out), "[!WARNING]")

	failed := sampleSummary()
	failed.Err = "poll gave up"
	out, err = Render(failed)
	require.NoError(t, err)
	assert.Contains(t, string(out), "[!CAUTION]")
}

func TestRenderEmptyRun(t *testing.T) {
	t.Parallel()

	out, err := Render(Summary{RunID: "r", State: "FAILED", Err: "service down"})
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "None yet.")
	assert.False(t, strings.Contains(text, "mermaid"))
}
