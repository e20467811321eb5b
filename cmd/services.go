package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsubapi "cloud.google.com/go/pubsub"
	gcsapi "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/checkpoint/file"
	"github.com/JakeFAU/site-harvester/internal/checkpoint/postgres"
	"github.com/JakeFAU/site-harvester/internal/checkpoint/sqlite"
	"github.com/JakeFAU/site-harvester/internal/config"
	"github.com/JakeFAU/site-harvester/internal/crawlsvc/firecrawl"
	crawllocal "github.com/JakeFAU/site-harvester/internal/crawlsvc/local"
	"github.com/JakeFAU/site-harvester/internal/harvest"
	"github.com/JakeFAU/site-harvester/internal/intel"
	"github.com/JakeFAU/site-harvester/internal/intel/ollama"
	"github.com/JakeFAU/site-harvester/internal/intel/openai"
	"github.com/JakeFAU/site-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/site-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/site-harvester/internal/storage"
	"github.com/JakeFAU/site-harvester/internal/storage/gcs"
	storagelocal "github.com/JakeFAU/site-harvester/internal/storage/local"
	"github.com/JakeFAU/site-harvester/internal/storage/memory"
)

// services holds everything a harvest run is wired from.
type services struct {
	backend   harvest.CrawlBackend
	primary   harvest.StatusTransport
	secondary harvest.StatusTransport
	intel     *intel.Adapter
	store     checkpoint.Store
	blobs     harvest.BlobStore
	publisher harvest.Publisher

	closers []func()
}

// Close releases resources in reverse construction order.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *services) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

func buildServices(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *services, err error) {
	svc := &services{}
	defer func() {
		if err != nil {
			svc.Close()
		}
	}()

	if err := svc.buildCrawl(cfg, logger); err != nil {
		return nil, err
	}
	if err := svc.buildIntel(cfg, logger); err != nil {
		return nil, err
	}
	store, err := openCheckpoint(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc.store = store
	svc.onClose(func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("close checkpoint store", zap.Error(cerr))
		}
	})
	if err := svc.buildStorage(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := svc.buildPublisher(ctx, cfg, logger); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *services) buildCrawl(cfg config.Config, logger *zap.Logger) error {
	switch cfg.Crawl.Backend {
	case config.CrawlFirecrawl:
		client, err := firecrawl.New(firecrawl.Config{
			BaseURL: cfg.Crawl.Firecrawl.BaseURL,
			Token:   cfg.Crawl.Firecrawl.Token,
			Auth:    cfg.Crawl.Firecrawl.Auth,
			Timeout: cfg.Crawl.Firecrawl.Timeout,
		}, logger.Named("firecrawl"))
		if err != nil {
			return fmt.Errorf("init firecrawl client: %w", err)
		}
		s.backend, s.primary, s.secondary = client, client.Primary(), client.Secondary()
	case config.CrawlLocal:
		var opts []crawllocal.Option
		if cfg.Crawl.Local.Headless {
			browser, err := crawllocal.NewBrowser(crawllocal.BrowserConfig{
				MaxParallel:       cfg.Crawl.Local.HeadlessMaxParallel,
				UserAgent:         cfg.Crawl.Local.UserAgent,
				NavigationTimeout: cfg.Crawl.Local.NavTimeout,
			})
			if err != nil {
				return fmt.Errorf("init headless browser: %w", err)
			}
			s.onClose(browser.Close)
			opts = append(opts, crawllocal.WithRenderer(browser, crawllocal.NewDetector(cfg.Crawl.Local.RenderThreshold)))
		}
		backend := crawllocal.New(crawllocal.Config{
			UserAgent:     cfg.Crawl.Local.UserAgent,
			PageSize:      cfg.Crawl.Local.PageSize,
			Timeout:       cfg.Crawl.Local.Timeout,
			RespectRobots: cfg.Crawl.Local.RespectRobots,
			BlockedHosts:  cfg.Crawl.Local.BlockedHosts,
		}, logger.Named("local-crawl"), opts...)
		s.onClose(backend.Close)
		s.backend, s.primary = backend, backend
	default:
		return fmt.Errorf("unknown crawl backend %q", cfg.Crawl.Backend)
	}
	return nil
}

func (s *services) buildIntel(cfg config.Config, logger *zap.Logger) error {
	var backend harvest.Intelligence
	switch cfg.Intel.Backend {
	case config.IntelOllama:
		client, err := ollama.New(ollama.Config{
			BaseURL:     cfg.Intel.BaseURL,
			Model:       cfg.Intel.Model,
			Temperature: cfg.Intel.Temperature,
			NumCtx:      cfg.Intel.NumCtx,
			Timeout:     cfg.Intel.Timeout,
		}, logger.Named("ollama"))
		if err != nil {
			return fmt.Errorf("init ollama client: %w", err)
		}
		backend = intel.NewPromptBackend(client)
	case config.IntelOpenAI:
		client, err := openai.New(openai.Config{
			BaseURL:     cfg.Intel.BaseURL,
			APIKey:      cfg.Intel.APIKey,
			Model:       cfg.Intel.Model,
			Temperature: cfg.Intel.Temperature,
			Timeout:     cfg.Intel.Timeout,
		})
		if err != nil {
			return fmt.Errorf("init openai client: %w", err)
		}
		backend = intel.NewPromptBackend(client)
	case config.IntelNone:
		backend = intel.Passthrough{}
	default:
		return fmt.Errorf("unknown intel backend %q", cfg.Intel.Backend)
	}

	intelLogger := logger.Named("intel")
	limiter := ratelimit.New(ratelimit.Config{
		Interval: cfg.Intel.Wait,
		Burst:    1,
		OnDelay: func(key string, waited time.Duration) {
			intelLogger.Debug("intel call paced", zap.String("key", key), zap.Duration("waited", waited))
		},
	})
	s.intel = intel.NewAdapter(backend, intelLogger,
		intel.WithPacer(limiter, ratelimit.Key(cfg.Intel.BaseURL)),
		intel.WithMaxKeywords(cfg.Intel.MaxKeywords),
	)
	return nil
}

// openCheckpoint opens the configured manifest store.
func openCheckpoint(ctx context.Context, cfg config.Config, logger *zap.Logger) (checkpoint.Store, error) {
	logger = logger.Named("checkpoint")
	switch cfg.Checkpoint.Backend {
	case config.CheckpointFile:
		store, err := file.New(cfg.ManifestPath(), logger)
		if err != nil {
			return nil, fmt.Errorf("open manifest file: %w", err)
		}
		return store, nil
	case config.CheckpointSQLite:
		store, err := sqlite.Open(ctx, cfg.ManifestPath(), cfg.Checkpoint.Key, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite checkpoint: %w", err)
		}
		return store, nil
	case config.CheckpointPostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:   cfg.Checkpoint.DSN,
			Table: cfg.Checkpoint.Table,
			Key:   cfg.Checkpoint.Key,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres checkpoint: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

func (s *services) buildStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	switch cfg.Storage.Backend {
	case config.StorageLocal:
		local, err := storagelocal.New(storagelocal.Config{BaseDir: cfg.Run.OutputDir})
		if err != nil {
			return fmt.Errorf("init output dir: %w", err)
		}
		s.blobs = local
		if cfg.Mirrored() {
			remote, err := s.openGCS(ctx, cfg)
			if err != nil {
				return err
			}
			s.blobs = storage.NewMirror(local, remote, logger.Named("mirror"))
		}
	case config.StorageMemory:
		s.blobs = memory.NewBlobStore()
	case config.StorageGCS:
		remote, err := s.openGCS(ctx, cfg)
		if err != nil {
			return err
		}
		s.blobs = remote
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return nil
}

func (s *services) openGCS(ctx context.Context, cfg config.Config) (*gcs.BlobStore, error) {
	client, err := gcsapi.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	s.onClose(func() { _ = client.Close() })
	store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
	if err != nil {
		return nil, fmt.Errorf("init gcs store: %w", err)
	}
	if err := store.Check(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *services) buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.PubSub.TopicName == "" {
		return nil
	}
	if cfg.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id is required when pubsub.topic_name is set")
	}
	client, err := pubsubapi.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := pubsub.New(client)
	s.onClose(func() {
		publisher.Close()
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close pubsub client", zap.Error(cerr))
		}
	})
	s.publisher = publisher
	return nil
}
