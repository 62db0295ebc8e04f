// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/worker"
)

// ErrNoWorkers is returned by Run when the pool is empty.
var ErrNoWorkers = errors.New("dispatcher has no workers")

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   catalog.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue catalog.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every enqueued job is done or ctx
// finishes. The queue is closed before Run returns, and Run waits for every
// worker to exit.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.workers) == 0 {
		d.queue.Close()
		return ErrNoWorkers
	}

	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}

	err := d.queue.Wait(ctx)
	d.queue.Close()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job catalog.Job) error {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
