// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// AppName names the XDG config directory.
const AppName = "site-harvester"

// Backend names accepted by the config.
const (
	CrawlFirecrawl = "firecrawl"
	CrawlLocal     = "local"

	IntelOllama = "ollama"
	IntelOpenAI = "openai"
	IntelNone   = "none"

	CheckpointFile     = "file"
	CheckpointSQLite   = "sqlite"
	CheckpointPostgres = "postgres"

	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageGCS    = "gcs"
)

// Config captures every knob of a harvest run.
type Config struct {
	Run        RunConfig        `mapstructure:"run"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Poll       PollConfig       `mapstructure:"poll"`
	Intel      IntelConfig      `mapstructure:"intel"`
	Vocab      VocabConfig      `mapstructure:"vocab"`
	Slug       SlugConfig       `mapstructure:"slug"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RunConfig describes what to harvest and where documents go.
type RunConfig struct {
	StartURL  string        `mapstructure:"start_url"`
	OutputDir string        `mapstructure:"output_dir"`
	MaxPages  int           `mapstructure:"max_pages"`
	Delay     time.Duration `mapstructure:"delay"`
}

// CrawlConfig selects the crawl backend and the options a job is started with.
type CrawlConfig struct {
	Backend            string          `mapstructure:"backend"`
	Limit              int             `mapstructure:"limit"`
	MaxConcurrency     int             `mapstructure:"max_concurrency"`
	Sitemap            string          `mapstructure:"sitemap"`
	MaxDiscoveryDepth  int             `mapstructure:"max_discovery_depth"`
	CrawlEntireDomain  bool            `mapstructure:"crawl_entire_domain"`
	WaitFor            time.Duration   `mapstructure:"wait_for"`
	Formats            []string        `mapstructure:"formats"`
	ExtraScrapeOptions string          `mapstructure:"extra_scrape_options"`
	Firecrawl          FirecrawlConfig `mapstructure:"firecrawl"`
	Local              LocalConfig     `mapstructure:"local"`
}

// FirecrawlConfig reaches a Firecrawl v2 service.
type FirecrawlConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Auth    string        `mapstructure:"auth"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LocalConfig tunes the in-process crawler.
type LocalConfig struct {
	UserAgent           string        `mapstructure:"user_agent"`
	PageSize            int           `mapstructure:"page_size"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Headless            bool          `mapstructure:"headless"`
	HeadlessMaxParallel int           `mapstructure:"headless_max_parallel"`
	NavTimeout          time.Duration `mapstructure:"nav_timeout"`
	RenderThreshold     int           `mapstructure:"render_threshold"`
	RespectRobots       bool          `mapstructure:"respect_robots"`
	BlockedHosts        []string      `mapstructure:"blocked_hosts"`
}

// PollConfig bounds status polling.
type PollConfig struct {
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
}

// IntelConfig selects the text-intelligence backend.
type IntelConfig struct {
	Backend     string        `mapstructure:"backend"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Wait        time.Duration `mapstructure:"wait"`
	NumCtx      int           `mapstructure:"num_ctx"`
	Temperature float64       `mapstructure:"temperature"`
	MaxKeywords int           `mapstructure:"max_keywords"`
}

// VocabConfig caps the global vocabularies.
type VocabConfig struct {
	CategoryCap int `mapstructure:"category_cap"`
	TagCap      int `mapstructure:"tag_cap"`
}

// SlugConfig bounds slug length.
type SlugConfig struct {
	MaxBytes int `mapstructure:"max_bytes"`
}

// ScheduleConfig spaces publish dates.
type ScheduleConfig struct {
	Threshold int `mapstructure:"threshold"`
	Group     int `mapstructure:"group"`
}

// CheckpointConfig selects where the manifest lives.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
	Key     string `mapstructure:"key"`
	Table   string `mapstructure:"table"`
}

// StorageConfig selects where documents are written. A local backend with a
// bucket set mirrors every document to GCS.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig enables document-written notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig selects where document spans are exported.
type TracingConfig struct {
	GCPProjectID string `mapstructure:"gcp_project_id"`
}

// ServerConfig controls the status server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment. With an empty path,
// config.yaml is looked up in the working directory and the XDG config
// directory; a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.start_url", "")
	v.SetDefault("run.output_dir", "results")
	v.SetDefault("run.max_pages", 0)
	v.SetDefault("run.delay", "200ms")

	v.SetDefault("crawl.backend", CrawlFirecrawl)
	v.SetDefault("crawl.limit", 100)
	v.SetDefault("crawl.max_concurrency", 100)
	v.SetDefault("crawl.sitemap", "include")
	v.SetDefault("crawl.max_discovery_depth", 2)
	v.SetDefault("crawl.crawl_entire_domain", false)
	v.SetDefault("crawl.wait_for", "1s")
	v.SetDefault("crawl.formats", []string{"markdown"})
	v.SetDefault("crawl.extra_scrape_options", "")
	v.SetDefault("crawl.firecrawl.base_url", "http://localhost:3002")
	v.SetDefault("crawl.firecrawl.token", "")
	v.SetDefault("crawl.firecrawl.auth", "")
	v.SetDefault("crawl.firecrawl.timeout", "60s")
	v.SetDefault("crawl.local.user_agent", "site-harvester/0.1")
	v.SetDefault("crawl.local.page_size", 10)
	v.SetDefault("crawl.local.timeout", "15s")
	v.SetDefault("crawl.local.headless", false)
	v.SetDefault("crawl.local.headless_max_parallel", 1)
	v.SetDefault("crawl.local.nav_timeout", "45s")
	v.SetDefault("crawl.local.render_threshold", 2048)
	v.SetDefault("crawl.local.respect_robots", true)
	v.SetDefault("crawl.local.blocked_hosts", []string{})

	v.SetDefault("poll.min_delay", "3s")
	v.SetDefault("poll.max_attempts", 0)
	v.SetDefault("poll.max_wait", "30m")

	v.SetDefault("intel.backend", IntelOllama)
	v.SetDefault("intel.base_url", "http://localhost:11434")
	v.SetDefault("intel.model", "qwen3:4b")
	v.SetDefault("intel.api_key", "")
	v.SetDefault("intel.timeout", "60s")
	v.SetDefault("intel.wait", "10s")
	v.SetDefault("intel.num_ctx", 512)
	v.SetDefault("intel.temperature", 0.25)
	v.SetDefault("intel.max_keywords", 70)

	v.SetDefault("vocab.category_cap", 70)
	v.SetDefault("vocab.tag_cap", 300)
	v.SetDefault("slug.max_bytes", 30)
	v.SetDefault("schedule.threshold", 50)
	v.SetDefault("schedule.group", 3)

	v.SetDefault("checkpoint.backend", CheckpointFile)
	v.SetDefault("checkpoint.path", "")
	v.SetDefault("checkpoint.dsn", "")
	v.SetDefault("checkpoint.key", "default")
	v.SetDefault("checkpoint.table", "harvest_manifests")

	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("tracing.gcp_project_id", "")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch {
	case c.Run.OutputDir == "":
		return errors.New("run.output_dir must be set")
	case c.Run.MaxPages < 0:
		return errors.New("run.max_pages must be >= 0")
	case c.Run.Delay < 0:
		return errors.New("run.delay must be >= 0")
	}

	switch c.Crawl.Backend {
	case CrawlFirecrawl:
		if c.Crawl.Firecrawl.BaseURL == "" {
			return errors.New("crawl.firecrawl.base_url must be set for the firecrawl backend")
		}
	case CrawlLocal:
		if c.Crawl.Local.Headless && c.Crawl.Local.HeadlessMaxParallel <= 0 {
			return errors.New("crawl.local.headless_max_parallel must be > 0 when headless is enabled")
		}
	default:
		return fmt.Errorf("crawl.backend %q must be firecrawl or local", c.Crawl.Backend)
	}

	if c.Poll.MaxAttempts < 0 || c.Poll.MaxWait < 0 {
		return errors.New("poll.max_attempts and poll.max_wait must be >= 0")
	}

	switch c.Intel.Backend {
	case IntelOllama, IntelOpenAI:
		if c.Intel.BaseURL == "" || c.Intel.Model == "" {
			return errors.New("intel.base_url and intel.model must be set")
		}
	case IntelNone:
	default:
		return fmt.Errorf("intel.backend %q must be ollama, openai or none", c.Intel.Backend)
	}
	if c.Intel.MaxKeywords <= 0 {
		return errors.New("intel.max_keywords must be > 0")
	}

	if c.Vocab.CategoryCap <= 0 || c.Vocab.TagCap <= 0 {
		return errors.New("vocab.category_cap and vocab.tag_cap must be > 0")
	}
	if c.Slug.MaxBytes <= 0 {
		return errors.New("slug.max_bytes must be > 0")
	}
	if c.Schedule.Threshold <= 0 || c.Schedule.Group <= 0 {
		return errors.New("schedule.threshold and schedule.group must be > 0")
	}

	switch c.Checkpoint.Backend {
	case CheckpointFile, CheckpointSQLite:
	case CheckpointPostgres:
		if c.Checkpoint.DSN == "" {
			return errors.New("checkpoint.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend %q must be file, sqlite or postgres", c.Checkpoint.Backend)
	}

	switch c.Storage.Backend {
	case StorageLocal, StorageMemory:
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q must be local, memory or gcs", c.Storage.Backend)
	}

	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic_name is")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return errors.New("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// ManifestPath is where the file or sqlite checkpoint backend keeps its data.
func (c Config) ManifestPath() string {
	if c.Checkpoint.Path != "" {
		return c.Checkpoint.Path
	}
	name := "manifest.json"
	if c.Checkpoint.Backend == CheckpointSQLite {
		name = "manifest.db"
	}
	return filepath.Join(c.Run.OutputDir, name)
}

// Mirrored reports whether local documents are also copied to GCS.
func (c Config) Mirrored() bool {
	return c.Storage.Backend == StorageLocal && c.Storage.GCSBucket != ""
}

// StartOptions converts the crawl section into backend start options. Extra
// scrape options are left for the caller to decode.
func (c CrawlConfig) StartOptions() harvest.StartOptions {
	return harvest.StartOptions{
		Limit:             c.Limit,
		MaxConcurrency:    c.MaxConcurrency,
		MaxDiscoveryDepth: c.MaxDiscoveryDepth,
		Sitemap:           c.Sitemap,
		CrawlEntireDomain: c.CrawlEntireDomain,
		Formats:           append([]string(nil), c.Formats...),
		WaitFor:           c.WaitFor,
	}
}
