package harvest

import (
	"context"
	"io"
	"time"
)

// StatusTransport fetches one status page of a crawl job. An empty cursor asks
// for the first page.
type StatusTransport interface {
	Status(ctx context.Context, job CrawlJob, cursor string) (PageBatch, error)
}

// CrawlBackend launches crawl jobs and reports on them.
type CrawlBackend interface {
	StatusTransport
	Start(ctx context.Context, url string, opts StartOptions) (CrawlJob, error)
}

// Intelligence is a text-intelligence service. Every call may fail; callers
// decide how to degrade.
type Intelligence interface {
	Translate(ctx context.Context, text string) (string, error)
	Classify(ctx context.Context, title, body string) (Classification, error)
	ExtractKeywords(ctx context.Context, title, body string, limit int) ([]string, error)
	ChooseClosest(ctx context.Context, term string, options []string, label string) (string, error)
}

// BlobStore persists rendered documents.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	DeleteObject(ctx context.Context, path string) error
}

// Publisher announces written documents to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock provides timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher produces content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}
