// Package memory provides the in-process job queue used by a run.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained, and
// by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO. Enqueue never blocks, so a producer can fill
// it completely before workers start. Close acts as the stop signal for every
// consumer: remaining jobs are still handed out, then Dequeue returns ErrClosed.
type Queue struct {
	mu      sync.Mutex
	items   []catalog.Job
	closed  bool
	wake    chan struct{}
	pending int
	idle    chan struct{}
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		wake: make(chan struct{}),
		idle: idle,
	}
}

// Enqueue appends a job. It fails only if ctx is done or the queue is closed.
func (q *Queue) Enqueue(ctx context.Context, job catalog.Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, job)
	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.pending++
	q.signal()
	return nil
}

// Dequeue pops the next job, blocking until one is available, the queue is
// closed, or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (catalog.Job, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = catalog.Job{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return job, nil
		}
		if q.closed {
			q.mu.Unlock()
			return catalog.Job{}, ErrClosed
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return catalog.Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-wake:
		}
	}
}

// Done marks one dequeued job as processed.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		return
	}
	q.pending--
	if q.pending == 0 {
		close(q.idle)
	}
}

// Wait blocks until every enqueued job has been marked Done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	// A drained queue reports success even when ctx has already ended.
	select {
	case <-idle:
		return nil
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait canceled: %w", ctx.Err())
	case <-idle:
		return nil
	}
}

// Len reports the number of jobs not yet dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.signal()
}

// signal wakes every blocked consumer. Callers hold mu.
func (q *Queue) signal() {
	close(q.wake)
	q.wake = make(chan struct{})
}
