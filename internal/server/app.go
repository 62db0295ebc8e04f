// Package server builds the application's dependencies and runs the service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/archive"
	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/database"
	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/ingest"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/origin"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-crawler/internal/scheduler"
	"github.com/JakeFAU/catalog-crawler/internal/scrape"
	gcsstorage "github.com/JakeFAU/catalog-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/catalog-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/catalog-crawler/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	coordinator  *scrape.Coordinator
	scheduler    *scheduler.Scheduler
	apiServer    *api.Server
	pgStore      *pgstore.Store
	storage      *storage.Client
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher

	closeOnce sync.Once
}

type stores struct {
	catalog catalog.Store
	runs    catalog.RunStore
	ready   api.ReadinessCheck
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("origin", cfg.Origin.BaseURL),
		zap.Int("workers", cfg.Crawler.Workers),
		zap.Bool("postgres", cfg.UsePostgres()),
		zap.String("archive", cfg.Archive.Backend),
	)

	st, err := setupDatabase(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	archiver, err := setupArchive(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	client := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Origin.UserAgent,
		Timeout:   cfg.Origin.Timeout,
	})
	resolver := origin.New(client, ratelimit.FromDelay(cfg.Origin.PageDelay), archiver, origin.Config{
		BaseURL:  cfg.Origin.BaseURL,
		PageSize: cfg.Origin.PageSize,
	}, logger)

	engine := ingest.New(ingest.Config{
		CenturyBase: cfg.Ingest.CenturyBase,
		Professor:   cfg.Crawler.NoProfessor,
	}, logger)

	app.coordinator, err = scrape.New(scrape.Config{
		Workers:         cfg.Crawler.Workers,
		RecentTerms:     cfg.Crawler.RecentTerms,
		HistoricalTerms: cfg.Crawler.HistoricalTerms,
		Topic:           cfg.PubSub.TopicName,
	}, scrape.Dependencies{
		Options:   resolver,
		Majors:    resolver,
		Courses:   resolver,
		Store:     st.catalog,
		Ingester:  engine,
		Runs:      st.runs,
		Publisher: publisher,
		IDs:       uuid.New(),
		Clock:     system.New(),
	}, logger)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("coordinator init failed: %w", err)
	}

	app.scheduler = scheduler.New(scheduler.Config{
		RunOnStart:         cfg.Schedule.RunOnStart,
		RecentInterval:     cfg.Schedule.RecentInterval,
		HistoricalInterval: cfg.Schedule.HistoricalInterval,
		RecentTerms:        cfg.Crawler.RecentTerms,
	}, app.coordinator, logger)

	app.apiServer = api.NewServer(app.coordinator, st.runs, cfg.Server, st.ready, logger)
	return app, nil
}

// Coordinator exposes the run coordinator for one-shot commands.
func (a *App) Coordinator() *scrape.Coordinator {
	return a.coordinator
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves the admin API and the scheduler until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if a.cfg.Schedule.Enabled {
		go a.scheduler.Run(ctx)
	} else {
		a.logger.Info("scheduler disabled")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.Close()
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close cancels background runs and releases infrastructure clients.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.coordinator != nil {
			a.coordinator.Close()
		}
		a.closeInfrastructure()
		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	})
}

func (a *App) closeInfrastructure() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func setupDatabase(ctx context.Context, app *App) (stores, error) {
	if !app.cfg.UsePostgres() {
		app.logger.Warn("no database DSN configured, using in-memory catalog store")
		return stores{
			catalog: memorystorage.NewCatalogStore(),
			runs:    memorystorage.NewRunStore(),
		}, nil
	}
	if app.cfg.Database.MigrateOnStart {
		if err := database.RunMigrations(app.cfg.Database.DSN, app.logger); err != nil {
			return stores{}, fmt.Errorf("migrations failed: %w", err)
		}
	}
	var err error
	app.pgStore, err = pgstore.NewStore(ctx, pgstore.StoreConfig{
		DSN:             app.cfg.Database.DSN,
		MaxConns:        app.cfg.Database.MaxConns,
		MinConns:        app.cfg.Database.MinConns,
		MaxConnLifetime: app.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return stores{}, fmt.Errorf("postgres store init failed: %w", err)
	}
	app.logger.Info("postgres store initialized", zap.Int32("max_conns", app.cfg.Database.MaxConns))
	return stores{catalog: app.pgStore, runs: app.pgStore, ready: app.pgStore.Ping}, nil
}

func setupArchive(ctx context.Context, app *App) (origin.PageArchiver, error) {
	var blobs catalog.BlobStore
	var err error
	switch app.cfg.Archive.Backend {
	case config.ArchiveGCS:
		app.logger.Info("archiving pages to GCS", zap.String("bucket", app.cfg.Archive.Bucket))
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err = gcsstorage.New(app.storage, gcsstorage.Config{Bucket: app.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case config.ArchiveLocal:
		app.logger.Info("archiving pages to local disk", zap.String("path", app.cfg.Archive.BaseDir))
		blobs, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
	case config.ArchiveMemory:
		app.logger.Info("archiving pages in memory")
		blobs = memorystorage.NewBlobStore()
	default:
		app.logger.Debug("page archive disabled")
		return nil, nil
	}
	return archive.New(blobs, sha256.New(), archive.Config{Prefix: app.cfg.Archive.Prefix}), nil
}

func setupPublisher(ctx context.Context, app *App) (catalog.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.publisher, err = gcppublisher.New(app.pubsubClient, app.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.publisher, nil
}
