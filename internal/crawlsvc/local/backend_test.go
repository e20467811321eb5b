package local

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/": `<html><head><title>Home</title><meta name="description" content="landing"></head>
<body><a href="/a">A</a><a href="/b">B</a><a href="http://elsewhere.invalid/x">X</a></body></html>`,
		"/a": `<html><head><title>Page A</title></head><body><a href="/">home</a><p>alpha</p></body></html>`,
		"/b": `<html><head><title>Page B</title></head><body><div id="root"></div></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitDone(t *testing.T, b *Backend, job harvest.CrawlJob) harvest.PageBatch {
	t.Helper()
	var last harvest.PageBatch
	require.Eventually(t, func() bool {
		batch, err := b.Status(context.Background(), job, "")
		if err != nil {
			return false
		}
		last = batch
		return batch.Status != StatusScraping
	}, 5*time.Second, 10*time.Millisecond)
	return last
}

func collectPages(t *testing.T, b *Backend, job harvest.CrawlJob) ([]harvest.RawEntry, int) {
	t.Helper()
	var (
		items  []harvest.RawEntry
		pages  int
		cursor string
	)
	for {
		batch, err := b.Status(context.Background(), job, cursor)
		require.NoError(t, err)
		pages++
		items = append(items, batch.Items...)
		if !batch.HasNext() {
			return items, pages
		}
		cursor = batch.NextCursor
	}
}

func TestBackendCrawlsSameHostAndPages(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	b := New(Config{PageSize: 2}, nil)
	t.Cleanup(b.Close)

	job, err := b.Start(context.Background(), srv.URL+"/", harvest.StartOptions{MaxDiscoveryDepth: 2, MaxConcurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, Cursor(job.ID, 0), job.StatusURL)

	done := waitDone(t, b, job)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 3, done.Total)
	assert.Equal(t, 3, done.Completed)

	items, pages := collectPages(t, b, job)
	assert.Equal(t, 2, pages)

	var titles []string
	for _, item := range items {
		titles = append(titles, item.Title)
		assert.True(t, strings.HasPrefix(item.SourceURL, srv.URL))
		assert.NotEmpty(t, item.HTML)
	}
	sort.Strings(titles)
	assert.Equal(t, []string{"Home", "Page A", "Page B"}, titles)
}

func TestBackendHonoursLimitAndDepth(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	b := New(Config{}, nil)
	t.Cleanup(b.Close)

	job, err := b.Start(context.Background(), srv.URL+"/", harvest.StartOptions{MaxDiscoveryDepth: 0})
	require.NoError(t, err)
	done := waitDone(t, b, job)
	require.Len(t, done.Items, 1)
	assert.Equal(t, "Home", done.Items[0].Title)
	assert.Equal(t, "landing", done.Items[0].Description)

	limited, err := b.Start(context.Background(), srv.URL+"/", harvest.StartOptions{MaxDiscoveryDepth: 3, Limit: 2})
	require.NoError(t, err)
	done = waitDone(t, b, limited)
	assert.Equal(t, 2, done.Completed)
}

type fakeRenderer struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeRenderer) Render(_ context.Context, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, target)
	return "<html><body><p>rendered</p></body></html>", nil
}

func TestBackendRendersShellPages(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	renderer := &fakeRenderer{}
	b := New(Config{}, nil, WithRenderer(renderer, NewDetector(10)))
	t.Cleanup(b.Close)

	job, err := b.Start(context.Background(), srv.URL+"/", harvest.StartOptions{MaxDiscoveryDepth: 1})
	require.NoError(t, err)
	waitDone(t, b, job)
	items, _ := collectPages(t, b, job)

	for _, item := range items {
		if item.Title == "Page B" {
			assert.Contains(t, item.HTML, "rendered")
		} else {
			assert.NotContains(t, item.HTML, "rendered")
		}
	}
	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	assert.Equal(t, []string{srv.URL + "/b"}, renderer.urls)
}

func TestBackendStartRejectsBadURL(t *testing.T) {
	t.Parallel()

	b := New(Config{}, nil)
	_, err := b.Start(context.Background(), "not a url", harvest.StartOptions{})
	var unavailable *harvest.ServiceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "local", unavailable.Service)
}

func TestBackendStatusErrors(t *testing.T) {
	t.Parallel()

	b := New(Config{}, nil)
	_, err := b.Status(context.Background(), harvest.CrawlJob{ID: "missing"}, "")
	assert.True(t, errors.Is(err, ErrUnknownJob))

	_, err = b.Status(context.Background(), harvest.CrawlJob{}, "https://example.com/v2/crawl/x")
	assert.ErrorIs(t, err, harvest.ErrMalformedResponse)
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	id, offset, err := ParseCursor(Cursor("0192-abc", 20))
	require.NoError(t, err)
	assert.Equal(t, "0192-abc", id)
	assert.Equal(t, 20, offset)

	_, _, err = ParseCursor("local://job/-3")
	assert.Error(t, err)
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	u, _ := url.Parse("https://docs.example.com/x")
	assert.False(t, sameSite(u, "example.com", false))
	assert.True(t, sameSite(u, "example.com", true))
	assert.True(t, sameSite(u, "DOCS.example.com", false))
}

func TestDetector(t *testing.T) {
	t.Parallel()

	d := NewDetector(0)
	assert.Equal(t, DefaultBodyThreshold, d.BodyThreshold)
	assert.True(t, d.NeedsRender(http.StatusOK, nil))
	assert.True(t, d.NeedsRender(http.StatusOK, []byte(`<div id="__next"></div>`)))
	assert.True(t, d.NeedsRender(http.StatusOK, []byte(`<html><script>var a=1;</script><p>t</p></html>`)))
	assert.False(t, d.NeedsRender(http.StatusNotFound, nil))
	assert.False(t, d.NeedsRender(http.StatusOK, []byte(`<html><body><p>`+strings.Repeat("text ", 50)+`</p></body></html>`)))
}

func TestBrowserConfig(t *testing.T) {
	t.Parallel()

	_, err := NewBrowser(BrowserConfig{MaxParallel: -1})
	require.Error(t, err)

	b, err := NewBrowser(BrowserConfig{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	assert.Equal(t, 2, cap(b.slots))
	assert.Equal(t, defaultNavigationTimeout, b.cfg.NavigationTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.slots <- struct{}{}
	b.slots <- struct{}{}
	assert.ErrorIs(t, b.acquire(ctx), context.Canceled)
}

func TestBackendHonoursRobotsAndBlocklist(t *testing.T) {
	t.Parallel()

	var hits sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Store(r.URL.Path, true)
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		case "/":
			_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body><a href="/private">p</a><a href="/public">q</a></body></html>`))
		default:
			_, _ = w.Write([]byte(`<html><head><title>` + r.URL.Path + `</title></head><body><p>x</p></body></html>`))
		}
	}))
	t.Cleanup(srv.Close)

	b := New(Config{RespectRobots: true}, nil)
	t.Cleanup(b.Close)
	job, err := b.Start(context.Background(), srv.URL+"/", harvest.StartOptions{MaxDiscoveryDepth: 1})
	require.NoError(t, err)
	waitDone(t, b, job)
	items, _ := collectPages(t, b, job)

	var titles []string
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	sort.Strings(titles)
	assert.Equal(t, []string{"/public", "Home"}, titles)
	_, fetched := hits.Load("/private")
	assert.False(t, fetched)

	u, _ := url.Parse(srv.URL)
	blocked := New(Config{BlockedHosts: []string{u.Hostname()}}, nil)
	t.Cleanup(blocked.Close)
	job, err = blocked.Start(context.Background(), srv.URL+"/", harvest.StartOptions{})
	require.NoError(t, err)
	err = waitFailed(t, blocked, job)
	assert.Contains(t, err.Error(), job.ID)
}

func waitFailed(t *testing.T, b *Backend, job harvest.CrawlJob) error {
	t.Helper()
	var last error
	require.Eventually(t, func() bool {
		_, last = b.Status(context.Background(), job, "")
		return last != nil
	}, 5*time.Second, 10*time.Millisecond)
	var unavailable *harvest.ServiceUnavailableError
	require.ErrorAs(t, last, &unavailable)
	assert.Equal(t, "local", unavailable.Service)
	return last
}

func TestBackendFailsWhenStartPageFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	b := New(Config{}, nil)
	t.Cleanup(b.Close)
	job, err := b.Start(context.Background(), srv.URL+"/", harvest.StartOptions{MaxDiscoveryDepth: 1})
	require.NoError(t, err)

	err = waitFailed(t, b, job)
	assert.Contains(t, err.Error(), "Not Found")

	// Later pages of the same job report the same failure.
	_, err = b.Status(context.Background(), job, Cursor(job.ID, 10))
	var unavailable *harvest.ServiceUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestBlocklist(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewBlocklist([]string{" ", "*."}))
	var none *Blocklist
	assert.False(t, none.Blocked("example.com"))

	b := NewBlocklist([]string{"Ads.Example.com", "*.tracker.net", ".cdn.io"})
	assert.True(t, b.Blocked("ads.example.com"))
	assert.False(t, b.Blocked("example.com"))
	assert.True(t, b.Blocked("x.tracker.net"))
	assert.True(t, b.Blocked("tracker.net"))
	assert.True(t, b.Blocked("a.b.cdn.io"))
	assert.False(t, b.Blocked("notcdn.io"))
}

func TestRobotsAllowsWhenUnreachable(t *testing.T) {
	t.Parallel()

	r := NewRobots(http.DefaultTransport, "", nil)
	u, _ := url.Parse("http://127.0.0.1:1/page")
	assert.True(t, r.Allowed(context.Background(), u))
}
