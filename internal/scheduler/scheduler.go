// Package scheduler triggers periodic full runs.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/scrape"
)

// Starter admits background full runs.
type Starter interface {
	StartFull(ctx context.Context, req scrape.FullRequest) (catalog.Run, error)
}

// Config sets the trigger cadence.
type Config struct {
	// RunOnStart submits an initial run (recent terms plus backfill) when Run begins.
	RunOnStart         bool
	RecentInterval     time.Duration
	HistoricalInterval time.Duration
	RecentTerms        int
}

// Scheduler submits recent runs and historical runs on fixed intervals.
// A tick that lands while a run is in flight is dropped.
type Scheduler struct {
	cfg     Config
	starter Starter
	logger  *zap.Logger
}

// New builds a Scheduler.
func New(cfg Config, starter Starter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, starter: starter, logger: logger.Named("scheduler")}
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("recent_interval", s.cfg.RecentInterval),
		zap.Duration("historical_interval", s.cfg.HistoricalInterval))

	if s.cfg.RunOnStart {
		s.trigger(ctx, catalog.ModeInitial)
	}

	recent := time.NewTicker(s.cfg.RecentInterval)
	defer recent.Stop()
	historical := time.NewTicker(s.cfg.HistoricalInterval)
	defer historical.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-recent.C:
			s.trigger(ctx, catalog.ModeRecent)
		case <-historical.C:
			s.trigger(ctx, catalog.ModeHistorical)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, mode catalog.Mode) {
	run, err := s.starter.StartFull(ctx, scrape.FullRequest{Mode: mode, RecentCount: s.cfg.RecentTerms})
	switch {
	case errors.Is(err, scrape.ErrAlreadyRunning):
		s.logger.Info("scheduled run skipped, another run in flight", zap.String("mode", string(mode)))
	case err != nil:
		s.logger.Error("scheduled run not started", zap.String("mode", string(mode)), zap.Error(err))
	default:
		s.logger.Info("scheduled run started", zap.String("mode", string(mode)), zap.String("run_id", run.ID))
	}
}
