package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

func job(term string) catalog.Job {
	return catalog.Job{Term: catalog.TermOption{Code: term}}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	result := make(chan catalog.Job, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	if err := q.Enqueue(context.Background(), job("202510")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.Term.Code != "202510" {
			t.Fatalf("expected 202510, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueEnqueueNeverBlocks(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	for i := 0; i < 1000; i++ {
		if err := q.Enqueue(context.Background(), job("202510")); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}
	if q.Len() != 1000 {
		t.Fatalf("expected 1000 queued jobs, got %d", q.Len())
	}
	first, err := q.Dequeue(context.Background())
	if err != nil || first.Term.Code != "202510" {
		t.Fatalf("Dequeue() = %+v, %v", first, err)
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}
	if err := q.Enqueue(ctx, job("x")); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait() on an idle queue should return immediately, got %v", err)
	}
}

func TestQueueWaitPrefersDrainedOverCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 200; i++ {
		q := NewQueue()
		if err := q.Enqueue(context.Background(), job("a")); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		if _, err := q.Dequeue(context.Background()); err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		q.Done()
		if err := q.Wait(ctx); err != nil {
			t.Fatalf("iteration %d: Wait() on a drained queue = %v", i, err)
		}
	}
}

func TestQueueCloseDrainsThenStops(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	if err := q.Enqueue(context.Background(), job("a")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()
	if err := q.Enqueue(context.Background(), job("b")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
	got, err := q.Dequeue(context.Background())
	if err != nil || got.Term.Code != "a" {
		t.Fatalf("expected queued job before close error, got %+v %v", got, err)
	}
	if _, err := q.Dequeue(context.Background()); err == nil || err.Error() != "queue closed" {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}

func TestQueueCloseReleasesBlockedConsumers(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Dequeue(context.Background())
			errs <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	}
}

func TestQueueWaitForDone(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	for _, term := range []string{"a", "b"} {
		if err := q.Enqueue(context.Background(), job(term)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	waited := make(chan error, 1)
	go func() { waited <- q.Wait(context.Background()) }()

	for i := 0; i < 2; i++ {
		if _, err := q.Dequeue(context.Background()); err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
	}
	select {
	case <-waited:
		t.Fatal("Wait returned before jobs were done")
	case <-time.After(20 * time.Millisecond):
	}

	q.Done()
	q.Done()
	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Done")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Enqueue(ctx, job("c")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	cancel()
	if err := q.Wait(ctx); err == nil {
		t.Fatal("expected Wait to honor cancellation")
	}
}
