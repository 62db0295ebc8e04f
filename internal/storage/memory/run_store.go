package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// RunStore provides an in-memory run history for development/testing.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]catalog.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]catalog.Run)}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run catalog.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	run.Terms = append([]string(nil), run.Terms...)
	s.runs[run.ID] = run
	return nil
}

// StartRun marks a run as running and records the terms it covers.
func (s *RunStore) StartRun(_ context.Context, runID string, terms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, catalog.ErrNotFound)
	}
	run.Status = catalog.RunStatusRunning
	run.Terms = append([]string(nil), terms...)
	if run.Started == nil {
		run.Started = pointerTime(time.Now().UTC())
	}
	s.runs[runID] = run
	return nil
}

// FinishRun records the terminal status and final counters.
func (s *RunStore) FinishRun(
	_ context.Context,
	runID string,
	status catalog.RunStatus,
	errText string,
	counters catalog.RunCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, catalog.ErrNotFound)
	}
	run.Status = status
	run.ErrorText = errText
	run.Counters = counters
	if status.IsTerminal() {
		run.Finished = pointerTime(time.Now().UTC())
	}
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (catalog.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return catalog.Run{}, fmt.Errorf("run %s: %w", runID, catalog.ErrNotFound)
	}
	run.Terms = append([]string(nil), run.Terms...)
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit returns all.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]catalog.Run, error) {
	s.mu.RLock()
	out := make([]catalog.Run, 0, len(s.runs))
	for _, run := range s.runs {
		run.Terms = append([]string(nil), run.Terms...)
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Submitted.Equal(out[j].Submitted) {
			return out[i].ID > out[j].ID
		}
		return out[i].Submitted.After(out[j].Submitted)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
