// Package cmd defines the CLI commands for the catalog-crawler executable.
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

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/scrape"
	"github.com/JakeFAU/catalog-crawler/internal/server"
)

// skipApp marks commands that only need configuration.
const skipApp = "skip-app"

type ctxKey string

const (
	appKey ctxKey = "app"
	cfgKey ctxKey = "config"
)

// Scraper is the part of the coordinator the one-shot commands drive.
type Scraper interface {
	RunFull(ctx context.Context, req scrape.FullRequest) (catalog.Run, error)
	RunTargeted(ctx context.Context, req scrape.TargetedRequest) (scrape.TargetedResult, error)
}

// App defines the application interface that commands use. Tests inject a
// fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Scraper() Scraper
	Logger() *zap.Logger
	Close()
}

type serverApp struct {
	*server.App
}

func (a serverApp) Scraper() Scraper {
	return a.App.Coordinator()
}

var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return serverApp{App: app}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "catalog-crawler",
		Short: "Crawls the SIIAU course catalog into a relational store.",
		Long: `catalog-crawler discovers terms, campuses and majors on the SIIAU
course catalog, fetches every paginated course listing and ingests the
rows into a normalized schema. It runs as a scheduled service or as
one-shot commands.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), cfgKey, &cfg)
			if cmd.Annotations[skipApp] == "" {
				appInstance, err := newApp(ctx, &cfg)
				if err != nil {
					return fmt.Errorf("failed to initialize application services: %w", err)
				}
				ctx = context.WithValue(ctx, appKey, appInstance)
			}
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func resolveConfig(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
