package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
run:
  start_url: https://docs.example.com/
  output_dir: out
  max_pages: 25
  delay: 2s
crawl:
  backend: local
  limit: 40
  max_discovery_depth: 3
  formats: [markdown, html]
  local:
    headless: true
    headless_max_parallel: 2
    page_size: 5
poll:
  min_delay: 5s
  max_attempts: 12
intel:
  backend: openai
  base_url: https://api.example.com/v1
  model: gpt-test
  wait: 0s
vocab:
  category_cap: 10
checkpoint:
  backend: sqlite
storage:
  gcs_bucket: mirror-bucket
pubsub:
  project_id: proj
  topic_name: docs
tracing:
  gcp_project_id: trace-proj
logging:
  development: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://docs.example.com/", cfg.Run.StartURL)
	assert.Equal(t, 25, cfg.Run.MaxPages)
	assert.Equal(t, 2*time.Second, cfg.Run.Delay)
	assert.Equal(t, CrawlLocal, cfg.Crawl.Backend)
	assert.Equal(t, 5, cfg.Crawl.Local.PageSize)
	assert.Equal(t, 5*time.Second, cfg.Poll.MinDelay)
	assert.Equal(t, 12, cfg.Poll.MaxAttempts)
	assert.Equal(t, IntelOpenAI, cfg.Intel.Backend)
	assert.Zero(t, cfg.Intel.Wait)
	assert.Equal(t, 10, cfg.Vocab.CategoryCap)
	assert.Equal(t, 300, cfg.Vocab.TagCap)
	assert.Equal(t, "trace-proj", cfg.Tracing.GCPProjectID)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, filepath.Join("out", "manifest.db"), cfg.ManifestPath())
	assert.True(t, cfg.Mirrored())

	opts := cfg.Crawl.StartOptions()
	assert.Equal(t, 40, opts.Limit)
	assert.Equal(t, 3, opts.MaxDiscoveryDepth)
	assert.Equal(t, []string{"markdown", "html"}, opts.Formats)
	assert.Equal(t, time.Second, opts.WaitFor)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "run:\n  start_url: https://example.com\n"))
	require.NoError(t, err)

	assert.Equal(t, "results", cfg.Run.OutputDir)
	assert.Equal(t, 200*time.Millisecond, cfg.Run.Delay)
	assert.Equal(t, CrawlFirecrawl, cfg.Crawl.Backend)
	assert.Equal(t, "http://localhost:3002", cfg.Crawl.Firecrawl.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Poll.MinDelay)
	assert.Equal(t, "qwen3:4b", cfg.Intel.Model)
	assert.Equal(t, 10*time.Second, cfg.Intel.Wait)
	assert.InDelta(t, 0.25, cfg.Intel.Temperature, 1e-9)
	assert.Equal(t, 70, cfg.Intel.MaxKeywords)
	assert.Equal(t, 70, cfg.Vocab.CategoryCap)
	assert.Equal(t, 30, cfg.Slug.MaxBytes)
	assert.Equal(t, 50, cfg.Schedule.Threshold)
	assert.Equal(t, 3, cfg.Schedule.Group)
	assert.Equal(t, filepath.Join("results", "manifest.json"), cfg.ManifestPath())
	assert.False(t, cfg.Mirrored())
	assert.Empty(t, cfg.Tracing.GCPProjectID)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HARVEST_CRAWL_FIRECRAWL_TOKEN", "secret")
	t.Setenv("HARVEST_RUN_MAX_PAGES", "7")

	cfg, err := Load(writeConfig(t, "run:\n  start_url: https://example.com\n"))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Crawl.Firecrawl.Token)
	assert.Equal(t, 7, cfg.Run.MaxPages)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, "run:\n  start_url: https://example.com\n"))
	require.NoError(t, err)
	return cfg
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"output dir", func(c *Config) { c.Run.OutputDir = "" }, "run.output_dir"},
		{"negative pages", func(c *Config) { c.Run.MaxPages = -1 }, "run.max_pages"},
		{"crawl backend", func(c *Config) { c.Crawl.Backend = "scrapy" }, "crawl.backend"},
		{"firecrawl base", func(c *Config) { c.Crawl.Firecrawl.BaseURL = "" }, "crawl.firecrawl.base_url"},
		{"headless parallel", func(c *Config) {
			c.Crawl.Backend = CrawlLocal
			c.Crawl.Local.Headless = true
			c.Crawl.Local.HeadlessMaxParallel = 0
		}, "headless_max_parallel"},
		{"poll bounds", func(c *Config) { c.Poll.MaxAttempts = -2 }, "poll.max_attempts"},
		{"intel backend", func(c *Config) { c.Intel.Backend = "gpt" }, "intel.backend"},
		{"intel model", func(c *Config) { c.Intel.Model = "" }, "intel.model"},
		{"vocab caps", func(c *Config) { c.Vocab.TagCap = 0 }, "vocab.category_cap"},
		{"slug bytes", func(c *Config) { c.Slug.MaxBytes = 0 }, "slug.max_bytes"},
		{"schedule", func(c *Config) { c.Schedule.Group = 0 }, "schedule.threshold"},
		{"postgres dsn", func(c *Config) { c.Checkpoint.Backend = CheckpointPostgres }, "checkpoint.dsn"},
		{"gcs bucket", func(c *Config) { c.Storage.Backend = StorageGCS }, "storage.gcs_bucket"},
		{"pubsub project", func(c *Config) { c.PubSub.TopicName = "docs" }, "pubsub.project_id"},
		{"server port", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Port = 0
		}, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIntelNoneNeedsNoModel(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Intel.Backend = IntelNone
	cfg.Intel.Model = ""
	assert.NoError(t, cfg.Validate())
}
