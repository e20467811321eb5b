// Package firecrawl implements harvest.CrawlBackend against the Firecrawl v2 HTTP API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

const serviceName = "firecrawl"

// Start defaults.
const (
	DefaultLimit             = 100
	DefaultMaxConcurrency    = 100
	DefaultSitemap           = "include"
	DefaultMaxDiscoveryDepth = 2
	DefaultWaitFor           = time.Second
	DefaultTimeout           = 60 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Token is sent as "Bearer <token>".
	Token string
	// Auth is a complete Authorization header value and wins over Token.
	Auth       string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client launches crawls and reads their status pages.
type Client struct {
	base   string
	auth   string
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("firecrawl base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse firecrawl base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{base: base, auth: AuthHeader(cfg.Token, cfg.Auth), http: httpClient, logger: logger}, nil
}

// AuthHeader picks the Authorization value: auth as given, or a bearer token.
func AuthHeader(token, auth string) string {
	if a := strings.TrimSpace(auth); a != "" {
		return a
	}
	if t := strings.TrimSpace(token); t != "" {
		return "Bearer " + t
	}
	return ""
}

type startResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

// Start launches a crawl of startURL. Any failure is a ServiceUnavailableError.
func (c *Client) Start(ctx context.Context, startURL string, opts harvest.StartOptions) (harvest.CrawlJob, error) {
	payload, err := json.Marshal(StartPayload(startURL, opts))
	if err != nil {
		return harvest.CrawlJob{}, fmt.Errorf("marshal start payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v2/crawl", bytes.NewReader(payload))
	if err != nil {
		return harvest.CrawlJob{}, fmt.Errorf("create start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return harvest.CrawlJob{}, &harvest.ServiceUnavailableError{Service: serviceName, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return harvest.CrawlJob{}, &harvest.ServiceUnavailableError{Service: serviceName, Err: statusError(resp)}
	}
	var out startResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return harvest.CrawlJob{}, &harvest.ServiceUnavailableError{Service: serviceName, Err: harvest.Malformed("start crawl", err)}
	}
	if strings.TrimSpace(out.ID) == "" {
		msg := out.Error
		if msg == "" {
			msg = "no job id in response"
		}
		return harvest.CrawlJob{}, &harvest.ServiceUnavailableError{Service: serviceName, Err: errors.New(msg)}
	}
	statusURL := strings.TrimSpace(out.URL)
	if statusURL == "" {
		statusURL = c.base + "/v2/crawl/" + url.PathEscape(out.ID)
	}
	c.logger.Info("crawl started", zap.String("job_id", out.ID), zap.String("status_url", statusURL))
	return harvest.CrawlJob{ID: out.ID, StatusURL: statusURL}, nil
}

// StartPayload builds the /v2/crawl request body, applying defaults for zero
// options and merging ExtraScrapeOptions into scrapeOptions.
func StartPayload(startURL string, opts harvest.StartOptions) map[string]any {
	formats := opts.Formats
	if len(formats) == 0 {
		formats = []string{"markdown"}
	}
	waitFor := opts.WaitFor
	if waitFor <= 0 {
		waitFor = DefaultWaitFor
	}
	scrape := map[string]any{
		"formats": formats,
		"waitFor": waitFor.Milliseconds(),
	}
	for k, v := range opts.ExtraScrapeOptions {
		extra, isMap := v.(map[string]any)
		existing, hasMap := scrape[k].(map[string]any)
		if isMap && hasMap {
			for ik, iv := range extra {
				existing[ik] = iv
			}
			continue
		}
		scrape[k] = v
	}
	delete(scrape, "crawlOptions")

	return map[string]any{
		"url":               startURL,
		"scrapeOptions":     scrape,
		"limit":             orDefault(opts.Limit, DefaultLimit),
		"maxConcurrency":    orDefault(opts.MaxConcurrency, DefaultMaxConcurrency),
		"sitemap":           orDefaultString(opts.Sitemap, DefaultSitemap),
		"maxDiscoveryDepth": orDefault(opts.MaxDiscoveryDepth, DefaultMaxDiscoveryDepth),
		"crawlEntireDomain": opts.CrawlEntireDomain,
	}
}

// ParseExtraScrapeOptions decodes a JSON object of extra scrape options.
func ParseExtraScrapeOptions(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse extra scrape options: %w", err)
	}
	return out, nil
}

// Status fetches a status page through the primary transport.
func (c *Client) Status(ctx context.Context, job harvest.CrawlJob, cursor string) (harvest.PageBatch, error) {
	return c.Primary().Status(ctx, job, cursor)
}

// Primary addresses status pages by job id against the configured base URL.
// A cursor is rebased onto the base URL, keeping its path and query.
func (c *Client) Primary() harvest.StatusTransport { return byJobID{c} }

// Secondary fetches the cursor, or the job's status URL, exactly as given.
func (c *Client) Secondary() harvest.StatusTransport { return byRawURL{c} }

type byJobID struct{ c *Client }

func (t byJobID) Status(ctx context.Context, job harvest.CrawlJob, cursor string) (harvest.PageBatch, error) {
	if cursor == "" {
		if job.ID == "" {
			return harvest.PageBatch{}, errors.New("job id required")
		}
		return t.c.fetch(ctx, t.c.base+"/v2/crawl/"+url.PathEscape(job.ID))
	}
	u, err := url.Parse(cursor)
	if err != nil {
		return harvest.PageBatch{}, fmt.Errorf("parse cursor: %w", err)
	}
	target := t.c.base + u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return t.c.fetch(ctx, target)
}

type byRawURL struct{ c *Client }

func (t byRawURL) Status(ctx context.Context, job harvest.CrawlJob, cursor string) (harvest.PageBatch, error) {
	target := cursor
	if target == "" {
		target = job.StatusURL
	}
	if target == "" {
		return harvest.PageBatch{}, errors.New("status url required")
	}
	return t.c.fetch(ctx, target)
}

func (c *Client) authorize(req *http.Request) {
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
}

func (c *Client) fetch(ctx context.Context, target string) (harvest.PageBatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return harvest.PageBatch{}, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return harvest.PageBatch{}, harvest.Transient("crawl status", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return harvest.PageBatch{}, harvest.Transient("crawl status", statusError(resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return harvest.PageBatch{}, fmt.Errorf("crawl status: %w", statusError(resp))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return harvest.PageBatch{}, harvest.Transient("read crawl status", err)
	}
	return ParseStatus(body)
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
