package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/site-harvester/internal/api"
	"github.com/JakeFAU/site-harvester/internal/clock/system"
	"github.com/JakeFAU/site-harvester/internal/config"
	"github.com/JakeFAU/site-harvester/internal/crawlsvc/firecrawl"
	"github.com/JakeFAU/site-harvester/internal/hash/sha256"
	"github.com/JakeFAU/site-harvester/internal/id/uuid"
	"github.com/JakeFAU/site-harvester/internal/pipeline"
	"github.com/JakeFAU/site-harvester/internal/poller"
	"github.com/JakeFAU/site-harvester/internal/progress"
	"github.com/JakeFAU/site-harvester/internal/progress/sinks"
	"github.com/JakeFAU/site-harvester/internal/telemetry"
)

const hubCloseTimeout = 5 * time.Second

type harvestFlags struct {
	maxPages     int
	outputDir    string
	crawlBackend string
	intelBackend string
	serve        bool
}

func newHarvestCmd() *cobra.Command {
	var flags harvestFlags
	cmd := &cobra.Command{
		Use:   "harvest [start-url]",
		Short: "Crawl a site and write enriched markdown, resuming any unfinished run",
		Long: `Starts a crawl of start-url, or resumes the run recorded in the checkpoint.
Every document is translated, classified, given a unique slug and a publish
date, and written before the checkpoint advances. Interrupting the command
is safe; running it again continues where it stopped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := app.Config
			if len(args) == 1 {
				cfg.Run.StartURL = args[0]
			}
			applyHarvestFlags(cmd, flags, &cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return runHarvest(cmd.Context(), cfg, app.Logger)
		},
	}

	f := cmd.Flags()
	f.IntVar(&flags.maxPages, "max-pages", 0, "stop after this many documents in total (0 is unlimited)")
	f.StringVar(&flags.outputDir, "output-dir", "", "directory documents and the manifest are written to")
	f.StringVar(&flags.crawlBackend, "crawl-backend", "", "crawl backend: firecrawl or local")
	f.StringVar(&flags.intelBackend, "intel-backend", "", "intelligence backend: ollama, openai or none")
	f.BoolVar(&flags.serve, "serve", false, "serve status, manifest and metrics over HTTP while harvesting")
	return cmd
}

// applyHarvestFlags overrides cfg with the flags the user set explicitly.
func applyHarvestFlags(cmd *cobra.Command, flags harvestFlags, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("max-pages") {
		cfg.Run.MaxPages = flags.maxPages
	}
	if f.Changed("output-dir") {
		cfg.Run.OutputDir = flags.outputDir
	}
	if f.Changed("crawl-backend") {
		cfg.Crawl.Backend = strings.ToLower(flags.crawlBackend)
	}
	if f.Changed("intel-backend") {
		cfg.Intel.Backend = strings.ToLower(flags.intelBackend)
	}
	if f.Changed("serve") {
		cfg.Server.Enabled = flags.serve
	}
}

func runHarvest(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.Config{
		ServiceName: config.AppName,
		Version:     version,
		ProjectID:   cfg.Tracing.GCPProjectID,
	})
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdownTracing(context.WithoutCancel(ctx)); serr != nil {
			logger.Warn("shutdown tracing", zap.Error(serr))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("events")), promSink)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hubCloseTimeout)
		defer cancel()
		if cerr := hub.Close(closeCtx); cerr != nil {
			logger.Warn("close progress hub", zap.Error(cerr))
		}
	}()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	startOpts := cfg.Crawl.StartOptions()
	startOpts.ExtraScrapeOptions, err = firecrawl.ParseExtraScrapeOptions(cfg.Crawl.ExtraScrapeOptions)
	if err != nil {
		return fmt.Errorf("crawl.extra_scrape_options: %w", err)
	}

	// The poller reports attempts to the driver, which is built after it.
	var driver *pipeline.Driver
	statusPoller := poller.New(svc.primary, svc.secondary, poller.Config{
		MinDelay:    cfg.Poll.MinDelay,
		MaxAttempts: cfg.Poll.MaxAttempts,
		MaxWait:     cfg.Poll.MaxWait,
	}, logger.Named("poller"), poller.WithObserver(poller.ObserverFunc(func(attempt int, complete bool, err error) {
		driver.PollAttempt(attempt, complete, err)
	})))

	driver = pipeline.New(
		svc.backend,
		statusPoller,
		svc.intel,
		svc.store,
		svc.blobs,
		svc.publisher,
		system.New(),
		uuid.New(),
		sha256.New(),
		pipeline.Config{
			StartURL:          cfg.Run.StartURL,
			StartOptions:      startOpts,
			MaxPages:          cfg.Run.MaxPages,
			Delay:             cfg.Run.Delay,
			CrawlBackend:      cfg.Crawl.Backend,
			IntelBackend:      cfg.Intel.Backend,
			Topic:             cfg.PubSub.TopicName,
			SlugMaxBytes:      cfg.Slug.MaxBytes,
			CategoryCap:       cfg.Vocab.CategoryCap,
			TagCap:            cfg.Vocab.TagCap,
			ScheduleThreshold: cfg.Schedule.Threshold,
			ScheduleGroup:     cfg.Schedule.Group,
		},
		logger.Named("pipeline"),
		pipeline.WithEvents(hub),
	)

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	g.Go(func() error {
		defer stopServer()
		res, err := driver.Run(gctx)
		if err != nil {
			return err
		}
		logger.Info("harvest finished",
			zap.String("run_id", res.RunID),
			zap.Int("written", res.Written),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
			zap.Bool("done", res.Done),
			zap.Bool("limit_reached", res.LimitReached))
		return nil
	})
	if cfg.Server.Enabled {
		srv := api.NewServer(driver, svc.store, reg, logger.Named("api"))
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		g.Go(func() error {
			logger.Info("status server listening", zap.String("addr", addr))
			return srv.ListenAndServe(serverCtx, addr)
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("harvest interrupted; run again to resume")
			return nil
		}
		return fmt.Errorf("harvest: %w", err)
	}
	return nil
}
