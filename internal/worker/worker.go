// Package worker contains the crawl worker that turns queued (term, campus)
// jobs into persisted catalog rows.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/ingest"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Ingester persists one batch of course rows.
type Ingester interface {
	IngestBatch(
		ctx context.Context,
		sess catalog.Session,
		batch ingest.BatchContext,
		courses []catalog.RawCourse,
	) (ingest.BatchResult, error)
}

// Worker processes queue items sequentially on its own storage session.
type Worker struct {
	index    int
	queue    catalog.Queue
	store    catalog.Store
	majors   catalog.MajorSource
	courses  catalog.CourseSource
	ingester Ingester
	stats    *catalog.RunStats
	logger   *zap.Logger
}

// New wires a Worker with its dependencies.
func New(
	index int,
	queue catalog.Queue,
	store catalog.Store,
	majors catalog.MajorSource,
	courses catalog.CourseSource,
	ingester Ingester,
	stats *catalog.RunStats,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = &catalog.RunStats{}
	}
	return &Worker{
		index:    index,
		queue:    queue,
		store:    store,
		majors:   majors,
		courses:  courses,
		ingester: ingester,
		stats:    stats,
		logger:   logger.Named("worker").With(zap.Int("index", index)),
	}
}

// Run drains the queue until it is closed or ctx is canceled. The storage
// session is acquired on the first job and held until Run returns.
func (w *Worker) Run(ctx context.Context) {
	var sess catalog.Session
	defer func() {
		if sess != nil {
			sess.Release()
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Debug("queue drained", zap.Error(err))
			}
			return
		}

		if sess == nil {
			sess, err = w.store.Acquire(ctx)
			if err != nil {
				sess = nil
				w.stats.Jobs.Add(1)
				w.stats.CampusesFailed.Add(1)
				w.logger.Error("job skipped: storage session unavailable",
					zap.String("term", job.Term.Label),
					zap.String("campus", job.Campus.Name),
					zap.Error(err))
				w.queue.Done()
				continue
			}
		}

		w.handle(ctx, sess, job)
	}
}

func (w *Worker) handle(ctx context.Context, sess catalog.Session, job catalog.Job) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer w.queue.Done()
	defer func() {
		if r := recover(); r != nil {
			w.stats.CampusesFailed.Add(1)
			w.logger.Error("job panicked",
				zap.String("term", job.Term.Label),
				zap.String("campus", job.Campus.Name),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	w.stats.Jobs.Add(1)
	w.processJob(ctx, sess, job)
}

func (w *Worker) processJob(ctx context.Context, sess catalog.Session, job catalog.Job) {
	logger := w.logger.With(zap.String("term", job.Term.Label), zap.String("campus", job.Campus.Name))

	majors, err := w.majors.Majors(ctx, job.Campus)
	if err != nil {
		w.stats.CampusesFailed.Add(1)
		logger.Warn("campus skipped: majors unavailable", zap.Error(err))
		return
	}
	if len(majors) == 0 {
		logger.Info("campus skipped: no majors listed")
		return
	}

	for _, major := range majors {
		if !job.AllowsMajor(major.Code) {
			continue
		}
		if ctx.Err() != nil {
			logger.Warn("job interrupted", zap.Error(ctx.Err()))
			return
		}
		w.processMajor(ctx, sess, job, major, logger)
	}
}

func (w *Worker) processMajor(
	ctx context.Context,
	sess catalog.Session,
	job catalog.Job,
	major catalog.MajorOption,
	logger *zap.Logger,
) {
	w.stats.Majors.Add(1)
	logger = logger.With(zap.String("major", major.Code))

	courses, err := w.courses.Courses(ctx, catalog.CourseQuery{Term: job.Term, Campus: job.Campus, Major: major})
	if err != nil {
		w.stats.PagesFailed.Add(1)
		logger.Warn("listing incomplete", zap.Int("fetched", len(courses)), zap.Error(err))
	}
	w.stats.Courses.Add(int64(len(courses)))

	result, err := w.ingester.IngestBatch(ctx, sess, ingest.BatchContext{
		Term:   job.Term,
		Campus: job.Campus,
		Major:  major,
	}, courses)
	w.stats.Persisted.Add(int64(result.Persisted))
	w.stats.Failed.Add(int64(result.Failed))
	if err != nil {
		logger.Error("batch not persisted", zap.Int("courses", len(courses)), zap.Error(err))
		return
	}
	logger.Debug("major processed",
		zap.Int("courses", len(courses)),
		zap.Int("persisted", result.Persisted),
		zap.Int("failed", result.Failed))
}
