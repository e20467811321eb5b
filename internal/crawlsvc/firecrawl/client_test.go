package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

func TestAuthHeader(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Bearer tok", AuthHeader("tok", ""))
	assert.Equal(t, "Bearer custom", AuthHeader("tok", "Bearer custom"))
	assert.Equal(t, "", AuthHeader("", " "))
}

func TestStartPayloadDefaultsAndMerge(t *testing.T) {
	t.Parallel()

	extra, err := ParseExtraScrapeOptions(`{"onlyMainContent": true, "crawlOptions": {"x": 1}, "formats": ["html"]}`)
	require.NoError(t, err)

	p := StartPayload("https://example.com", harvest.StartOptions{CrawlEntireDomain: true, ExtraScrapeOptions: extra})
	assert.Equal(t, "https://example.com", p["url"])
	assert.Equal(t, DefaultLimit, p["limit"])
	assert.Equal(t, DefaultMaxConcurrency, p["maxConcurrency"])
	assert.Equal(t, "include", p["sitemap"])
	assert.Equal(t, DefaultMaxDiscoveryDepth, p["maxDiscoveryDepth"])
	assert.Equal(t, true, p["crawlEntireDomain"])

	scrape := p["scrapeOptions"].(map[string]any)
	assert.Equal(t, int64(1000), scrape["waitFor"])
	assert.Equal(t, true, scrape["onlyMainContent"])
	assert.Equal(t, []any{"html"}, scrape["formats"])
	assert.NotContains(t, scrape, "crawlOptions")

	none, err := ParseExtraScrapeOptions("")
	require.NoError(t, err)
	assert.Nil(t, none)
	_, err = ParseExtraScrapeOptions("{bad")
	require.Error(t, err)
}

func TestStartReturnsJob(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/crawl", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"success": true, "id": "abc-123"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Token: "secret"}, zap.NewNop())
	require.NoError(t, err)

	job, err := c.Start(context.Background(), "https://example.com", harvest.StartOptions{Limit: 5, WaitFor: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", job.ID)
	assert.Equal(t, srv.URL+"/v2/crawl/abc-123", job.StatusURL)
	assert.InDelta(t, 5, body["limit"], 0)
}

func TestStartFailuresAreServiceUnavailable(t *testing.T) {
	t.Parallel()

	tests := map[string]http.HandlerFunc{
		"http error": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusUnauthorized)
		},
		"missing id": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success": false, "error": "quota"}`))
		},
		"garbage": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(handler)
			t.Cleanup(srv.Close)
			c, err := New(Config{BaseURL: srv.URL}, nil)
			require.NoError(t, err)

			_, err = c.Start(context.Background(), "https://example.com", harvest.StartOptions{})
			var svc *harvest.ServiceUnavailableError
			require.ErrorAs(t, err, &svc)
			assert.Equal(t, "firecrawl", svc.Service)
		})
	}
}

const statusBody = `{
  "status": "completed",
  "total": "3",
  "completed": 3,
  "next": "https://internal.host/v2/crawl/abc-123?skip=2",
  "data": [
    {"markdown": "# A", "metadata": {"sourceURL": "https://example.com/a", "title": "A", "metadata": {"k": "v"}}},
    {"html": "<p>B</p>", "metadata": {"url": "https://example.com/b", "description": "about b"}},
    {"markdown": "# C", "metadata": {"sourceURL": "https://example.com/c", "metadata": {"z": "<b>&</b>", "a": ["é", 1]}}},
    {"markdown": "# no url", "metadata": {}},
    "not an object"
  ]
}`

func TestParseStatus(t *testing.T) {
	t.Parallel()

	batch, err := ParseStatus([]byte(statusBody))
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 3, batch.Completed)
	assert.Equal(t, "completed", batch.Status)
	assert.Equal(t, "https://internal.host/v2/crawl/abc-123?skip=2", batch.NextCursor)
	require.Len(t, batch.Items, 3)
	assert.Equal(t, harvest.RawEntry{SourceURL: "https://example.com/a", Title: "A", Description: `{"k":"v"}`, Markdown: "# A"}, batch.Items[0])
	assert.Equal(t, "about b", batch.Items[1].Description)
	assert.Equal(t, "<p>B</p>", batch.Items[1].HTML)
	assert.Equal(t, `{"z":"<b>&</b>","a":["é",1]}`, batch.Items[2].Description)

	_, err = ParseStatus([]byte(`[`))
	assert.ErrorIs(t, err, harvest.ErrMalformedResponse)
}

func TestTransports(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.RequestURI())
		mu.Unlock()
		if r.URL.Path == "/v2/crawl/broken" {
			http.Error(w, "later", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"scraping","total":2,"completed":1,"data":[]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/"}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	job := harvest.CrawlJob{ID: "abc-123", StatusURL: srv.URL + "/v2/crawl/abc-123"}

	_, err = c.Primary().Status(ctx, job, "")
	require.NoError(t, err)
	_, err = c.Primary().Status(ctx, job, "https://internal.host/v2/crawl/abc-123?skip=2")
	require.NoError(t, err)
	_, err = c.Secondary().Status(ctx, job, "")
	require.NoError(t, err)
	_, err = c.Status(ctx, harvest.CrawlJob{ID: "broken"}, "")
	assert.ErrorIs(t, err, harvest.ErrTransientNetwork)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"/v2/crawl/abc-123",
		"/v2/crawl/abc-123?skip=2",
		"/v2/crawl/abc-123",
		"/v2/crawl/broken",
	}, paths)

	_, err = c.Secondary().Status(ctx, harvest.CrawlJob{}, "")
	require.Error(t, err)
}
