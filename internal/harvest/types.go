package harvest

import "time"

// CrawlJob identifies a remote crawl job and the endpoint that reports on it.
type CrawlJob struct {
	ID        string
	StatusURL string
}

// StartOptions carries the crawl parameters handed to a backend when a job is launched.
type StartOptions struct {
	Limit             int
	MaxConcurrency    int
	MaxDiscoveryDepth int
	Sitemap           string
	CrawlEntireDomain bool
	Formats           []string
	WaitFor           time.Duration
	// ExtraScrapeOptions are merged into the backend's scrape options verbatim.
	ExtraScrapeOptions map[string]any
}

// RawEntry is a single crawled page as the backend returned it.
type RawEntry struct {
	SourceURL   string
	Title       string
	Description string
	Markdown    string
	HTML        string
}

// PageBatch is one page of crawl results. An empty NextCursor means there is no next page.
type PageBatch struct {
	Items      []RawEntry
	NextCursor string
	Total      int
	Completed  int
	Status     string
}

// HasNext reports whether another page follows this one.
func (b PageBatch) HasNext() bool {
	return b.NextCursor != ""
}

// Document is a normalized page ready for enrichment.
type Document struct {
	Title       string
	Description string
	Body        string
	SourceURL   string
}

// Classification holds the taxonomy proposed for a document.
type Classification struct {
	Categories []string
	Tags       []string
	Keywords   []string
}

// DocumentEvent announces a document that was written and checkpointed.
type DocumentEvent struct {
	RunID       string    `json:"runId"`
	Index       int       `json:"index"`
	Path        string    `json:"path"`
	Location    string    `json:"location"`
	SourceURL   string    `json:"sourceUrl"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	PublishDate string    `json:"publishDate"`
	Categories  []string  `json:"categories"`
	Tags        []string  `json:"tags"`
	ContentHash string    `json:"contentHash"`
	WrittenAt   time.Time `json:"writtenAt"`
}
