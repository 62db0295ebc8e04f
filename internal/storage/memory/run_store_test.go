package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	run := catalog.Run{ID: "run-1", Mode: catalog.ModeInitial, Status: catalog.RunStatusQueued, Submitted: time.Now()}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := store.CreateRun(ctx, run); err == nil {
		t.Fatal("expected duplicate run error")
	}
	if err := store.StartRun(ctx, run.ID, []string{"2025A", "2024V"}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	started, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if started.Status != catalog.RunStatusRunning || started.Started == nil || started.Finished != nil {
		t.Fatalf("unexpected running state %+v", started)
	}
	started.Terms[0] = "modified"
	if store.runs[run.ID].Terms[0] != "2025A" {
		t.Fatal("expected GetRun to return a copy of terms")
	}

	err = store.FinishRun(ctx, run.ID, catalog.RunStatusFailed, "origin down", catalog.RunCounters{Jobs: 4, Failed: 2})
	if err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	final, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if final.Status != catalog.RunStatusFailed || final.Finished == nil {
		t.Fatalf("expected terminal timestamps, got %+v", final)
	}
	if final.ErrorText != "origin down" || final.Counters.Jobs != 4 || final.Counters.Failed != 2 {
		t.Fatalf("expected counters/error text to persist, got %+v", final)
	}
}

func TestRunStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetRun() error = %v, want ErrNotFound", err)
	}
	if err := store.StartRun(ctx, "missing", nil); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("StartRun() error = %v, want ErrNotFound", err)
	}
	if err := store.FinishRun(ctx, "missing", catalog.RunStatusSucceeded, "", catalog.RunCounters{}); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("FinishRun() error = %v, want ErrNotFound", err)
	}
}

func TestRunStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := catalog.Run{ID: id, Submitted: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun(%s) error = %v", id, err)
		}
	}
	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected order %+v", runs)
	}
	all, _ := store.ListRuns(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
}
