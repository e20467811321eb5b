// Package pipeline drives a harvest run: launch or resume a crawl, poll its
// pages, enrich every entry and checkpoint after each written document.
package pipeline

import "time"

// State is the driver's position in the run state machine.
type State string

// Driver states.
const (
	StateInit       State = "INIT"
	StateStarting   State = "STARTING"
	StateResuming   State = "RESUMING"
	StatePolling    State = "POLLING"
	StateProcessing State = "PROCESSING_BATCH"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Snapshot is a point-in-time view of a run, safe to hand to other goroutines.
type Snapshot struct {
	RunID          string    `json:"runId"`
	State          State     `json:"state"`
	StartURL       string    `json:"startUrl,omitempty"`
	JobID          string    `json:"jobId,omitempty"`
	Cursor         string    `json:"cursor,omitempty"`
	PagesProcessed int       `json:"pagesProcessed"`
	FilesWritten   int       `json:"filesWritten"`
	Skipped        int       `json:"skipped"`
	Failed         int       `json:"failed"`
	Categories     int       `json:"categories"`
	Tags           int       `json:"tags"`
	LastSlug       string    `json:"lastSlug,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Err            string    `json:"error,omitempty"`
}

// Result summarizes a finished Run.
type Result struct {
	RunID          string
	State          State
	PagesProcessed int
	Written        int
	Skipped        int
	Failed         int
	Files          int
	// Cursor is the page a later run resumes from; empty once the crawl is exhausted.
	Cursor string
	// Done reports that the crawl has no further pages.
	Done bool
	// LimitReached reports that the page limit stopped the run.
	LimitReached bool
}
