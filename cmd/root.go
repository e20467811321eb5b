// Package cmd defines the site-harvester command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/config"
	"github.com/JakeFAU/site-harvester/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App carries what every subcommand needs.
type App struct {
	Config config.Config
	Logger *zap.Logger
}

// Close flushes the logger.
func (a *App) Close() {
	// Sync fails on stdout/stderr on some platforms; nothing to do about it.
	_ = a.Logger.Sync()
}

// version is set at build time with -ldflags "-X".
var version = "dev"

// newApp loads configuration and builds the logger. Tests replace it.
var newApp = func(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &App{Config: cfg, Logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   config.AppName,
		Short: "Harvest a documentation site into enriched markdown.",
		Long: `site-harvester crawls a site through Firecrawl or an in-process crawler,
translates and classifies every page, and writes Hugo-style markdown with a
bounded category and tag vocabulary. Runs checkpoint after every document
and resume where they stopped.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if app, ok := cmd.Context().Value(appKey).(*App); ok && app != nil {
				app.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or $XDG_CONFIG_HOME/site-harvester/config.yaml)")
	cmd.AddCommand(newHarvestCmd(), newManifestCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey).(*App)
	if !ok || app == nil {
		return nil, errors.New("application not initialized")
	}
	return app, nil
}

// Execute runs the root command until it finishes or the process is signalled.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
