// Package scrape coordinates full crawl runs and targeted refreshes. A
// Coordinator admits at most one full run at a time; concurrent requests are
// rejected immediately rather than queued.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	queuemem "github.com/JakeFAU/catalog-crawler/internal/queue/memory"
	"github.com/JakeFAU/catalog-crawler/internal/worker"
)

// ErrAlreadyRunning is returned when a full run is requested while another
// one holds the lock.
var ErrAlreadyRunning = errors.New("scrape already running")

// Default sizes. New fills in Workers and RecentTerms; HistoricalTerms is
// left as given because zero disables backfill.
const (
	DefaultWorkers         = 15
	DefaultRecentTerms     = 1
	DefaultHistoricalTerms = 10
)

// Config controls run planning and fan-out.
type Config struct {
	Workers int
	// RecentTerms is used when a request does not name a recent count.
	RecentTerms int
	// HistoricalTerms bounds the backfill window that follows the recent terms.
	// Zero limits initial and historical runs to the recent window.
	HistoricalTerms int
	// Topic receives a RunEvent whenever a run finishes.
	Topic string
}

// Dependencies are the collaborators a Coordinator drives.
type Dependencies struct {
	Options   catalog.OptionsSource
	Majors    catalog.MajorSource
	Courses   catalog.CourseSource
	Store     catalog.Store
	Ingester  worker.Ingester
	Runs      catalog.RunStore
	Publisher catalog.Publisher
	IDs       catalog.IDGenerator
	Clock     catalog.Clock
}

// FullRequest describes a gated full run.
type FullRequest struct {
	Mode        catalog.Mode
	RecentCount int
	// Majors restricts every campus job to these major codes when non-empty.
	Majors []string
}

// Coordinator owns the full-run lock and the background runs it started.
type Coordinator struct {
	cfg     Config
	deps    Dependencies
	running atomic.Bool
	logger  *zap.Logger

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates deps and builds a Coordinator.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Coordinator, error) {
	switch {
	case deps.Options == nil:
		return nil, errors.New("options source is required")
	case deps.Majors == nil:
		return nil, errors.New("major source is required")
	case deps.Courses == nil:
		return nil, errors.New("course source is required")
	case deps.Store == nil:
		return nil, errors.New("catalog store is required")
	case deps.Ingester == nil:
		return nil, errors.New("ingester is required")
	case deps.Runs == nil:
		return nil, errors.New("run store is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RecentTerms <= 0 {
		cfg.RecentTerms = DefaultRecentTerms
	}
	if cfg.HistoricalTerms < 0 {
		cfg.HistoricalTerms = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rootCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.Named("scrape"),
		rootCtx: rootCtx,
		cancel:  cancel,
	}, nil
}

// Running reports whether a full run currently holds the lock.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// RunFull executes a gated full run and blocks until it finishes. The
// returned Run carries the terminal status; the error is ErrAlreadyRunning
// on rejection or the run's failure cause.
func (c *Coordinator) RunFull(ctx context.Context, req FullRequest) (catalog.Run, error) {
	if !c.tryAcquire() {
		return catalog.Run{}, ErrAlreadyRunning
	}
	defer c.release()

	run, err := c.createRun(ctx, req)
	if err != nil {
		return catalog.Run{}, err
	}
	return c.supervise(ctx, run, req.Majors)
}

// StartFull admits a full run and executes it in the background. It returns
// the queued run record immediately. The run is canceled by Close.
func (c *Coordinator) StartFull(ctx context.Context, req FullRequest) (catalog.Run, error) {
	if !c.tryAcquire() {
		return catalog.Run{}, ErrAlreadyRunning
	}
	run, err := c.createRun(ctx, req)
	if err != nil {
		c.release()
		return catalog.Run{}, err
	}

	majors := append([]string(nil), req.Majors...)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release()
		if _, err := c.supervise(c.rootCtx, run, majors); err != nil {
			c.logger.Warn("background run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()
	return run, nil
}

// Wait blocks until every background run has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels background runs and waits for them to exit.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) tryAcquire() bool {
	if c.running.CompareAndSwap(false, true) {
		return true
	}
	metrics.ObserveRunRejected()
	return false
}

func (c *Coordinator) release() {
	c.running.Store(false)
}

func (c *Coordinator) createRun(ctx context.Context, req FullRequest) (catalog.Run, error) {
	mode := req.Mode
	if mode == "" {
		mode = catalog.ModeRecent
	}
	recent := req.RecentCount
	if recent <= 0 {
		recent = c.cfg.RecentTerms
	}
	id, err := c.deps.IDs.NewID()
	if err != nil {
		return catalog.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run := catalog.Run{
		ID:          id,
		Mode:        mode,
		RecentCount: recent,
		Status:      catalog.RunStatusQueued,
		Submitted:   c.deps.Clock.Now(),
	}
	if err := c.deps.Runs.CreateRun(ctx, run); err != nil {
		return catalog.Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// supervise executes the run, records its terminal status and publishes the
// outcome. Panics inside the run are recovered into a failed status.
func (c *Coordinator) supervise(ctx context.Context, run catalog.Run, majors []string) (catalog.Run, error) {
	logger := c.logger.With(zap.String("run_id", run.ID), zap.String("mode", string(run.Mode)))
	logger.Info("run started", zap.Int("recent_count", run.RecentCount))

	stats := &catalog.RunStats{}
	runErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("run panicked: %v", r)
			}
		}()
		terms, err := c.execute(ctx, run, majors, stats)
		run.Terms = terms
		return err
	}()

	run.Counters = stats.Snapshot()
	run.Status = catalog.RunStatusSucceeded
	if runErr != nil {
		run.Status = catalog.RunStatusFailed
		run.ErrorText = runErr.Error()
	}
	finished := c.deps.Clock.Now()
	run.Finished = &finished

	// The caller's ctx may already be canceled; terminal bookkeeping still runs.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.deps.Runs.FinishRun(bookCtx, run.ID, run.Status, run.ErrorText, run.Counters); err != nil {
		logger.Error("record run status failed", zap.Error(err))
	}
	metrics.ObserveRun(string(run.Mode), string(run.Status))
	c.publish(bookCtx, run, logger)

	fields := []zap.Field{
		zap.Strings("terms", run.Terms),
		zap.Int64("jobs", run.Counters.Jobs),
		zap.Int64("persisted", run.Counters.Persisted),
		zap.Int64("failed", run.Counters.Failed),
	}
	if runErr != nil {
		logger.Error("run failed", append(fields, zap.Error(runErr))...)
		return run, runErr
	}
	logger.Info("run finished", fields...)
	return run, nil
}

func (c *Coordinator) execute(
	ctx context.Context,
	run catalog.Run,
	majors []string,
	stats *catalog.RunStats,
) ([]string, error) {
	opts, err := c.deps.Options.Options(ctx)
	if err != nil {
		return nil, err
	}
	terms := c.selectTerms(ctx, opts.Terms, run.RecentCount, run.Mode)
	labels := make([]string, 0, len(terms))
	for _, term := range terms {
		labels = append(labels, term.Label)
	}

	if err := c.deps.Runs.StartRun(ctx, run.ID, labels); err != nil {
		c.logger.Warn("record run start failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	c.logger.Info("run planned",
		zap.String("run_id", run.ID),
		zap.Strings("terms", labels),
		zap.Int("campuses", len(opts.Campuses)),
		zap.Strings("major_filter", majors))

	queue := queuemem.NewQueue()
	workers := make([]*worker.Worker, 0, c.cfg.Workers)
	for i := 0; i < c.cfg.Workers; i++ {
		workers = append(workers, worker.New(
			i, queue, c.deps.Store, c.deps.Majors, c.deps.Courses, c.deps.Ingester, stats, c.logger,
		))
	}
	dispatch := dispatcher.New(queue, workers)

	for _, term := range terms {
		for _, campus := range opts.Campuses {
			job := catalog.Job{Term: term, Campus: campus, MajorFilter: majors}
			if err := dispatch.Enqueue(ctx, job); err != nil {
				queue.Close()
				return labels, fmt.Errorf("enqueue %s/%s: %w", term.Label, campus.Value, err)
			}
		}
	}
	if queue.Len() == 0 {
		queue.Close()
		return labels, nil
	}
	if err := dispatch.Run(ctx); err != nil {
		return labels, err
	}
	return labels, nil
}

func (c *Coordinator) publish(ctx context.Context, run catalog.Run, logger *zap.Logger) {
	if c.deps.Publisher == nil {
		return
	}
	event := catalog.RunEvent{
		RunID:     run.ID,
		Mode:      run.Mode,
		Status:    run.Status,
		Error:     run.ErrorText,
		Terms:     run.Terms,
		Counters:  run.Counters,
		Timestamp: run.Finished.UTC().Format(time.RFC3339),
	}
	if _, err := c.deps.Publisher.Publish(ctx, c.cfg.Topic, event); err != nil {
		logger.Warn("publish run event failed", zap.Error(err))
	}
}
