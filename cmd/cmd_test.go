package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/checkpoint/file"
	"github.com/JakeFAU/site-harvester/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Run.OutputDir = t.TempDir()
	cfg.Crawl.Backend = config.CrawlLocal
	cfg.Intel.Backend = config.IntelNone
	cfg.Checkpoint.Backend = config.CheckpointFile
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.GCSBucket = ""
	cfg.PubSub.TopicName = ""
	cfg.Server.Enabled = false
	cfg.Run.Delay = 0
	cfg.Poll.MinDelay = 5 * time.Millisecond
	cfg.Poll.MaxWait = 10 * time.Second
	return cfg
}

// withApp swaps the app factory for the duration of the test.
func withApp(t *testing.T, cfg config.Config) {
	t.Helper()
	prev := newApp
	newApp = func(string) (*App, error) {
		return &App{Config: cfg, Logger: zap.NewNop()}, nil
	}
	t.Cleanup(func() { newApp = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestApplyHarvestFlags(t *testing.T) {
	t.Parallel()

	cmd := newHarvestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--max-pages", "7", "--crawl-backend", "LOCAL", "--serve"}))

	cfg := config.Config{}
	cfg.Run.OutputDir = "keep"
	cfg.Intel.Backend = config.IntelOllama
	applyHarvestFlags(cmd, harvestFlags{maxPages: 7, crawlBackend: "LOCAL", serve: true}, &cfg)

	assert.Equal(t, 7, cfg.Run.MaxPages)
	assert.Equal(t, config.CrawlLocal, cfg.Crawl.Backend)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "keep", cfg.Run.OutputDir, "unset flags leave config alone")
	assert.Equal(t, config.IntelOllama, cfg.Intel.Backend)
}

func TestManifestCommandWithoutCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	withApp(t, cfg)

	_, err := execute(t, "manifest")
	require.ErrorIs(t, err, errNoManifest)
}

func TestManifestCommandPrintsJSON(t *testing.T) {
	cfg := testConfig(t)
	withApp(t, cfg)

	store, err := file.New(cfg.ManifestPath(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), checkpoint.Manifest{
		RunID:          "run-1",
		PagesProcessed: 2,
		Files:          []string{"example.com/a.md", "example.com/b.md"},
		PendingCursor:  checkpoint.StringPtr("https://api/next"),
	}))

	out, err := execute(t, "manifest", "--json")
	require.NoError(t, err)
	var got checkpoint.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 2, got.PagesProcessed)

	out, err = execute(t, "manifest")
	require.NoError(t, err)
	assert.Contains(t, out, "# Harvest Summary")
	assert.Contains(t, out, "https://api/next")
}

func TestHarvestRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	withApp(t, cfg)

	_, err := execute(t, "harvest", "https://example.com", "--crawl-backend", "ftp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.backend")
}

func TestHarvestLocalSiteEndToEnd(t *testing.T) {
	pages := map[string]string{
		"/":      `<html><head><title>Home</title></head><body><a href="/guide">guide</a><p>welcome</p></body></html>`,
		"/guide": `<html><head><title>Getting Started</title></head><body><p>install the tool</p></body></html>`,
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

	cfg := testConfig(t)
	cfg.Crawl.MaxDiscoveryDepth = 2
	withApp(t, cfg)

	_, err := execute(t, "harvest", srv.URL+"/")
	require.NoError(t, err)

	store, err := file.New(cfg.ManifestPath(), nil)
	require.NoError(t, err)
	m, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.Done)
	assert.Equal(t, 2, m.PagesProcessed)
	assert.ElementsMatch(t, []string{"127.0.0.1/index.md", "127.0.0.1/guide.md"}, m.Files)
	assert.Len(t, m.UsedSlugs, 2)

	for _, f := range m.Files {
		data, err := os.ReadFile(filepath.Join(cfg.Run.OutputDir, f))
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("---\n")), "front matter first")
	}
	_, err = os.Stat(filepath.Join(cfg.Run.OutputDir, "summary.md"))
	assert.NoError(t, err)
}
