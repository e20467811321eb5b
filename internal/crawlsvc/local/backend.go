// Package local crawls a site in-process with colly and serves the results
// through the same paged status interface as a remote crawl service.
package local

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// Scheme prefixes every cursor the local backend issues.
const Scheme = "local"

// DefaultPageSize is the number of entries served per status page.
const DefaultPageSize = 10

// Job states reported in PageBatch.Status.
const (
	StatusScraping  = "scraping"
	StatusCompleted = "completed"
)

var (
	// ErrUnknownJob is returned for job IDs this process did not start.
	ErrUnknownJob = errors.New("unknown local crawl job")
	// ErrNoPages is the failure of a crawl that finished without a single page.
	ErrNoPages = errors.New("crawl collected no pages")
)

// Config controls the in-process crawler.
type Config struct {
	UserAgent string
	PageSize  int
	Timeout   time.Duration
	// RespectRobots skips URLs the site's robots.txt disallows.
	RespectRobots bool
	// BlockedHosts lists hosts never visited; see NewBlocklist.
	BlockedHosts []string
	// Transport overrides the HTTP transport used by the collector.
	Transport http.RoundTripper
}

// Backend implements harvest.CrawlBackend without a remote service.
type Backend struct {
	cfg       Config
	detector  *Detector
	renderer  Renderer
	robots    *Robots
	blocklist *Blocklist
	logger    *zap.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// Option customizes a Backend.
type Option func(*Backend)

// WithRenderer enables browser rendering for pages the detector flags.
func WithRenderer(r Renderer, d *Detector) Option {
	return func(b *Backend) {
		b.renderer = r
		if d != nil {
			b.detector = d
		}
	}
}

// New builds a Backend.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = newHTTPTransport()
	}
	b := &Backend{
		cfg:       cfg,
		detector:  NewDetector(0),
		blocklist: NewBlocklist(cfg.BlockedHosts),
		logger:    logger,
		jobs:      make(map[string]*job),
	}
	if cfg.RespectRobots {
		b.robots = NewRobots(cfg.Transport, cfg.UserAgent, logger)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type job struct {
	mu      sync.Mutex
	items   []harvest.RawEntry
	seen    map[string]struct{}
	queued  int
	running bool
	err     error
	lastErr error
	cancel  context.CancelFunc
}

func (j *job) record(entry harvest.RawEntry, limit int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit > 0 && len(j.items) >= limit {
		return false
	}
	if _, ok := j.seen[entry.SourceURL]; ok {
		return false
	}
	j.seen[entry.SourceURL] = struct{}{}
	j.items = append(j.items, entry)
	return true
}

func (j *job) full(limit int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return limit > 0 && len(j.items) >= limit
}

// Start launches a crawl of startURL in the background. The crawl stays on
// the start URL's host and outlives ctx; Close stops it.
func (b *Backend) Start(ctx context.Context, startURL string, opts harvest.StartOptions) (harvest.CrawlJob, error) {
	root, err := url.Parse(strings.TrimSpace(startURL))
	if err != nil || root.Hostname() == "" {
		return harvest.CrawlJob{}, &harvest.ServiceUnavailableError{
			Service: "local",
			Err:     fmt.Errorf("invalid start url %q", startURL),
		}
	}

	id := uuid.NewString()
	crawlCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{seen: make(map[string]struct{}), running: true, cancel: cancel}

	collector, err := b.collector(crawlCtx, root, opts, j)
	if err != nil {
		cancel()
		return harvest.CrawlJob{}, &harvest.ServiceUnavailableError{Service: "local", Err: err}
	}

	b.mu.Lock()
	b.jobs[id] = j
	b.mu.Unlock()

	go func() {
		visitErr := collector.Visit(root.String())
		collector.Wait()
		j.mu.Lock()
		j.running = false
		if len(j.items) == 0 {
			j.err = cmp.Or(visitErr, j.lastErr, ErrNoPages)
		}
		count := len(j.items)
		j.mu.Unlock()
		b.logger.Info("local crawl finished",
			zap.String("job_id", id),
			zap.Int("pages", count),
			zap.Error(visitErr))
	}()

	b.logger.Info("local crawl started", zap.String("job_id", id), zap.String("url", root.String()))
	return harvest.CrawlJob{ID: id, StatusURL: Cursor(id, 0)}, nil
}

// Status serves one page of job's results. The cursor, or the job's status
// URL when the cursor is empty, selects the offset. A job that finished
// without collecting a page reports *harvest.ServiceUnavailableError.
func (b *Backend) Status(_ context.Context, crawl harvest.CrawlJob, cursor string) (harvest.PageBatch, error) {
	if cursor == "" {
		cursor = crawl.StatusURL
	}
	id, offset := crawl.ID, 0
	if cursor != "" {
		parsedID, parsedOffset, err := ParseCursor(cursor)
		if err != nil {
			return harvest.PageBatch{}, harvest.Malformed("local status", err)
		}
		if parsedID != "" {
			id = parsedID
		}
		offset = parsedOffset
	}

	b.mu.Lock()
	j, ok := b.jobs[id]
	b.mu.Unlock()
	if !ok {
		return harvest.PageBatch{}, fmt.Errorf("job %q: %w", id, ErrUnknownJob)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running && j.err != nil {
		return harvest.PageBatch{}, &harvest.ServiceUnavailableError{
			Service: "local",
			Err:     fmt.Errorf("job %q failed: %w", id, j.err),
		}
	}

	count := len(j.items)
	batch := harvest.PageBatch{Completed: count, Total: max(j.queued, count)}
	switch {
	case j.running:
		batch.Status = StatusScraping
	default:
		batch.Status = StatusCompleted
		batch.Total = count
	}

	if offset > count {
		offset = count
	}
	end := min(offset+b.cfg.PageSize, count)
	batch.Items = append([]harvest.RawEntry(nil), j.items[offset:end]...)
	if end < count || j.running {
		batch.NextCursor = Cursor(id, end)
	}
	return batch, nil
}

// Close stops every running crawl.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, j := range b.jobs {
		j.cancel()
	}
}

// Cursor formats the status cursor for offset within job id.
func Cursor(id string, offset int) string {
	return fmt.Sprintf("%s://%s/%d", Scheme, id, offset)
}

// ParseCursor splits a cursor produced by Cursor.
func ParseCursor(cursor string) (string, int, error) {
	u, err := url.Parse(cursor)
	if err != nil {
		return "", 0, fmt.Errorf("parse cursor: %w", err)
	}
	if u.Scheme != Scheme {
		return "", 0, fmt.Errorf("cursor %q: unexpected scheme %q", cursor, u.Scheme)
	}
	raw := strings.Trim(u.Path, "/")
	if raw == "" {
		return u.Host, 0, nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return "", 0, fmt.Errorf("cursor %q: bad offset", cursor)
	}
	return u.Host, offset, nil
}

func (b *Backend) collector(
	ctx context.Context,
	root *url.URL,
	opts harvest.StartOptions,
	j *job,
) (*colly.Collector, error) {
	options := []colly.CollectorOption{colly.Async(true)}
	if opts.MaxDiscoveryDepth >= 0 {
		options = append(options, colly.MaxDepth(opts.MaxDiscoveryDepth+1))
	}
	c := colly.NewCollector(options...)
	c.WithTransport(b.cfg.Transport)
	c.SetRequestTimeout(b.cfg.Timeout)
	if b.cfg.UserAgent != "" {
		c.UserAgent = b.cfg.UserAgent
	}
	if opts.MaxConcurrency > 0 {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: opts.MaxConcurrency}); err != nil {
			return nil, fmt.Errorf("limit collector: %w", err)
		}
	}

	host := root.Hostname()
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || j.full(opts.Limit) || !sameSite(r.URL, host, opts.CrawlEntireDomain) {
			r.Abort()
			return
		}
		if b.blocklist.Blocked(r.URL.Hostname()) || (b.robots != nil && !b.robots.Allowed(ctx, r.URL)) {
			b.logger.Debug("url excluded by crawl policy", zap.String("url", r.URL.String()))
			r.Abort()
			return
		}
		j.mu.Lock()
		j.queued++
		j.mu.Unlock()
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		// Already-visited and depth errors are expected here.
		_ = e.Request.Visit(link)
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		entry := harvest.RawEntry{
			SourceURL:   e.Request.URL.String(),
			Title:       strings.TrimSpace(e.ChildText("head > title")),
			Description: strings.TrimSpace(e.ChildAttr(`meta[name="description"]`, "content")),
			HTML:        string(e.Response.Body),
		}
		entry.HTML = b.maybeRender(ctx, entry.SourceURL, e.Response.StatusCode, e.Response.Body)
		j.record(entry, opts.Limit)
	})

	c.OnError(func(r *colly.Response, err error) {
		j.mu.Lock()
		j.lastErr = fmt.Errorf("fetch %s: %w", r.Request.URL, err)
		j.mu.Unlock()
		b.logger.Warn("local crawl request failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err))
	})
	return c, nil
}

func (b *Backend) maybeRender(ctx context.Context, target string, status int, body []byte) string {
	if b.renderer == nil || !b.detector.NeedsRender(status, body) {
		return string(body)
	}
	html, err := b.renderer.Render(ctx, target)
	if err != nil {
		b.logger.Warn("browser render failed; keeping static html", zap.String("url", target), zap.Error(err))
		return string(body)
	}
	return html
}

// sameSite reports whether u belongs to the crawl. With entireDomain set,
// subdomains of host are included.
func sameSite(u *url.URL, host string, entireDomain bool) bool {
	h := u.Hostname()
	if strings.EqualFold(h, host) {
		return true
	}
	return entireDomain && strings.HasSuffix(strings.ToLower(h), "."+strings.ToLower(host))
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
