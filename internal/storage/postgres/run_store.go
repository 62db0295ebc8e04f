package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const runColumns = `id, mode, recent_count, status, submitted_at, started_at, finished_at, error_text, terms, counters`

// CreateRun inserts a queued run.
func (s *Store) CreateRun(ctx context.Context, run catalog.Run) error {
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	terms := run.Terms
	if terms == nil {
		terms = []string{}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scrape_runs (id, mode, recent_count, status, submitted_at, terms, counters)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, string(run.Mode), run.RecentCount, string(run.Status), run.Submitted, terms, counters,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// StartRun marks a run as running.
func (s *Store) StartRun(ctx context.Context, runID string, terms []string) error {
	if terms == nil {
		terms = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrape_runs
		SET status = $2, terms = $3, started_at = COALESCE(started_at, $4)
		WHERE id = $1`,
		runID, string(catalog.RunStatusRunning), terms, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, catalog.ErrNotFound)
	}
	return nil
}

// FinishRun records the terminal status and counters.
func (s *Store) FinishRun(
	ctx context.Context,
	runID string,
	status catalog.RunStatus,
	errText string,
	counters catalog.RunCounters,
) error {
	payload, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	var finished *time.Time
	if status.IsTerminal() {
		now := time.Now().UTC()
		finished = &now
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrape_runs
		SET status = $2, error_text = $3, counters = $4, finished_at = $5
		WHERE id = $1`,
		runID, string(status), errText, payload, finished,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, catalog.ErrNotFound)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (catalog.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM scrape_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Run{}, fmt.Errorf("run %s: %w", runID, catalog.ErrNotFound)
		}
		return catalog.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]catalog.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM scrape_runs ORDER BY submitted_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []catalog.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (catalog.Run, error) {
	var (
		run      catalog.Run
		mode     string
		status   string
		counters []byte
	)
	err := row.Scan(
		&run.ID,
		&mode,
		&run.RecentCount,
		&status,
		&run.Submitted,
		&run.Started,
		&run.Finished,
		&run.ErrorText,
		&run.Terms,
		&counters,
	)
	if err != nil {
		return catalog.Run{}, err
	}
	run.Mode = catalog.Mode(mode)
	run.Status = catalog.RunStatus(status)
	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &run.Counters); err != nil {
			return catalog.Run{}, fmt.Errorf("decode counters: %w", err)
		}
	}
	return run, nil
}
