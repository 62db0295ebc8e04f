// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/ingest"
	queuemem "github.com/JakeFAU/catalog-crawler/internal/queue/memory"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/catalog-crawler/internal/worker"
)

// TestDispatcherRunDrainsQueue ensures Run returns once every job is processed.
func TestDispatcherRunDrainsQueue(t *testing.T) {
	t.Parallel()

	queue := queuemem.NewQueue()
	stats := &catalog.RunStats{}
	dispatch := New(queue, pool(queue, stats, 3))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, campus := range []string{"A", "B", "C", "D", "E"} {
		if err := dispatch.Enqueue(ctx, catalog.Job{
			Term:   catalog.TermOption{Code: "202510", Label: "2025A"},
			Campus: catalog.CampusOption{Value: campus, Name: campus},
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if err := dispatch.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := stats.Snapshot().Jobs; got != 5 {
		t.Fatalf("expected 5 jobs processed, got %d", got)
	}
	if err := queue.Enqueue(ctx, catalog.Job{}); !errors.Is(err, queuemem.ErrClosed) {
		t.Fatalf("expected closed queue after run, got %v", err)
	}
}

// TestDispatcherRunStopsOnCancel verifies workers exit when the context ends.
func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	queue := queuemem.NewQueue()
	blocking := &blockingMajors{started: make(chan struct{}, 1)}
	w := worker.New(0, queue, memory.NewCatalogStore(), blocking, noCourses{},
		ingest.New(ingest.Config{}, nil), nil, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	if err := dispatch.Enqueue(ctx, catalog.Job{Campus: catalog.CampusOption{Value: "D"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- dispatch.Run(ctx)
	}()

	select {
	case <-blocking.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin processing")
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherRunWithoutWorkers fails fast rather than waiting forever.
func TestDispatcherRunWithoutWorkers(t *testing.T) {
	t.Parallel()

	dispatch := New(queuemem.NewQueue(), nil)
	if err := dispatch.Run(context.Background()); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("expected ErrNoWorkers, got %v", err)
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := queuemem.NewQueue()
	queue.Close()
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), catalog.Job{})
	if err == nil || err.Error() != "queue enqueue: queue closed" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func pool(queue catalog.Queue, stats *catalog.RunStats, n int) []*worker.Worker {
	store := memory.NewCatalogStore()
	engine := ingest.New(ingest.Config{}, nil)
	workers := make([]*worker.Worker, 0, n)
	for i := 0; i < n; i++ {
		workers = append(workers, worker.New(i, queue, store, noMajors{}, noCourses{}, engine, stats, zap.NewNop()))
	}
	return workers
}

type noMajors struct{}

func (noMajors) Majors(context.Context, catalog.CampusOption) ([]catalog.MajorOption, error) {
	return nil, nil
}

type noCourses struct{}

func (noCourses) Courses(context.Context, catalog.CourseQuery) ([]catalog.RawCourse, error) {
	return nil, nil
}

type blockingMajors struct {
	started chan struct{}
}

func (b *blockingMajors) Majors(ctx context.Context, _ catalog.CampusOption) ([]catalog.MajorOption, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}
