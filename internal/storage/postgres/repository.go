package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const uniqueViolation = "23505"

// txRepo implements catalog.Tx over a pgx transaction. Nested units are
// savepoints.
type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) Begin(ctx context.Context) (catalog.Tx, error) {
	nested, err := r.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin savepoint: %w", err)
	}
	return &txRepo{tx: nested}, nil
}

func (r *txRepo) Commit(ctx context.Context) error {
	return r.tx.Commit(ctx)
}

func (r *txRepo) Rollback(ctx context.Context) error {
	return r.tx.Rollback(ctx)
}

func (r *txRepo) Term(ctx context.Context, name string) (int64, bool, error) {
	return r.getOrCreate(ctx,
		`SELECT id FROM terms WHERE name = $1`, []any{name},
		`INSERT INTO terms (name) VALUES ($1) ON CONFLICT DO NOTHING RETURNING id`, []any{name},
	)
}

func (r *txRepo) Campus(ctx context.Context, name, code string) (int64, bool, error) {
	id, created, err := r.getOrCreate(ctx,
		`SELECT id FROM campuses WHERE name = $1`, []any{name},
		`INSERT INTO campuses (name, code) VALUES ($1, NULLIF($2, '')) ON CONFLICT DO NOTHING RETURNING id`,
		[]any{name, code},
	)
	if err != nil || created || code == "" {
		return id, created, err
	}
	// The code is write-once: only a campus without one takes it.
	if _, err := r.tx.Exec(ctx, `UPDATE campuses SET code = $2 WHERE id = $1 AND code IS NULL`, id, code); err != nil {
		return 0, false, fmt.Errorf("set campus code: %w", err)
	}
	return id, false, nil
}

func (r *txRepo) Major(ctx context.Context, code, name string) (int64, bool, error) {
	return r.getOrCreate(ctx,
		`SELECT id FROM majors WHERE code = $1`, []any{code},
		`INSERT INTO majors (code, name) VALUES ($1, $2) ON CONFLICT DO NOTHING RETURNING id`, []any{code, name},
	)
}

func (r *txRepo) Subject(ctx context.Context, code, name string, credits int) (int64, bool, error) {
	return r.getOrCreate(ctx,
		`SELECT id FROM subjects WHERE code = $1`, []any{code},
		`INSERT INTO subjects (code, name, credits) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING RETURNING id`,
		[]any{code, name, credits},
	)
}

func (r *txRepo) Professor(ctx context.Context, name string) (int64, bool, error) {
	return r.getOrCreate(ctx,
		`SELECT id FROM professors WHERE name = $1`, []any{name},
		`INSERT INTO professors (name) VALUES ($1) ON CONFLICT DO NOTHING RETURNING id`, []any{name},
	)
}

func (r *txRepo) Section(ctx context.Context, s catalog.Section) (int64, bool, error) {
	return r.getOrCreate(ctx,
		`SELECT id FROM sections WHERE reference = $1 AND term_id = $2`, []any{s.Reference, s.TermID},
		`INSERT INTO sections (reference, term_id, number, subject_id, professor_id, campus_id, seats_total, seats_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT DO NOTHING RETURNING id`,
		[]any{s.Reference, s.TermID, s.Number, s.SubjectID, s.ProfessorID, s.CampusID, s.SeatsTotal, s.SeatsAvailable},
	)
}

func (r *txRepo) Room(ctx context.Context, label, building string) (int64, bool, error) {
	return r.getOrCreate(ctx,
		`SELECT id FROM rooms WHERE label = $1 AND building = $2`, []any{label, building},
		`INSERT INTO rooms (label, building) VALUES ($1, $2) ON CONFLICT DO NOTHING RETURNING id`, []any{label, building},
	)
}

func (r *txRepo) Meeting(ctx context.Context, m catalog.Meeting) (int64, bool, error) {
	args := []any{
		m.SectionID,
		m.RoomID,
		m.StartDate,
		m.EndDate,
		timeOfDay(m.StartTime),
		timeOfDay(m.EndTime),
		m.Weekday,
	}
	return r.getOrCreate(ctx,
		`SELECT id FROM meetings
		WHERE section_id = $1 AND room_id = $2 AND start_date = $3::date AND end_date = $4::date
		AND start_time = $5::time AND end_time = $6::time AND weekday = $7`, args,
		`INSERT INTO meetings (section_id, room_id, start_date, end_date, start_time, end_time, weekday)
		VALUES ($1, $2, $3::date, $4::date, $5::time, $6::time, $7) ON CONFLICT DO NOTHING RETURNING id`, args,
	)
}

func (r *txRepo) LinkCampusMajor(ctx context.Context, campusID, majorID int64) error {
	if _, err := r.tx.Exec(ctx,
		`INSERT INTO campus_majors (campus_id, major_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		campusID, majorID,
	); err != nil {
		return fmt.Errorf("link campus major: %w", err)
	}
	return nil
}

func (r *txRepo) LinkMajorSubject(ctx context.Context, majorID, subjectID int64) error {
	if _, err := r.tx.Exec(ctx,
		`INSERT INTO major_subjects (major_id, subject_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		majorID, subjectID,
	); err != nil {
		return fmt.Errorf("link major subject: %w", err)
	}
	return nil
}

func (r *txRepo) UpdateSectionSeats(ctx context.Context, sectionID int64, total, available int) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE sections SET seats_total = $2, seats_available = $3, updated_at = now() WHERE id = $1`,
		sectionID, total, available,
	)
	if err != nil {
		return fmt.Errorf("update section seats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("section %d: %w", sectionID, catalog.ErrNotFound)
	}
	return nil
}

// getOrCreate selects by natural key and inserts when absent. The insert runs
// in its own savepoint; when a concurrent writer wins the race (no row
// returned, or a unique violation) the row is selected again.
func (r *txRepo) getOrCreate(
	ctx context.Context,
	selectSQL string,
	selectArgs []any,
	insertSQL string,
	insertArgs []any,
) (int64, bool, error) {
	id, err := r.selectID(ctx, selectSQL, selectArgs)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	created, err := r.insertID(ctx, insertSQL, insertArgs, &id)
	if err != nil {
		return 0, false, err
	}
	if created {
		return id, true, nil
	}
	id, err = r.selectID(ctx, selectSQL, selectArgs)
	if err != nil {
		return 0, false, fmt.Errorf("reselect after conflict: %w", err)
	}
	return id, false, nil
}

func (r *txRepo) selectID(ctx context.Context, query string, args []any) (int64, error) {
	var id int64
	if err := r.tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("select id: %w", err)
	}
	return id, nil
}

// insertID reports false, nil when the insert lost a uniqueness race.
func (r *txRepo) insertID(ctx context.Context, query string, args []any, id *int64) (bool, error) {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin insert savepoint: %w", err)
	}
	err = sp.QueryRow(ctx, query, args...).Scan(id)
	switch {
	case err == nil:
		if err := sp.Commit(ctx); err != nil {
			return false, fmt.Errorf("release insert savepoint: %w", err)
		}
		return true, nil
	case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return false, fmt.Errorf("rollback insert savepoint: %w", rbErr)
		}
		return false, nil
	default:
		_ = sp.Rollback(ctx)
		return false, fmt.Errorf("insert: %w", err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func timeOfDay(t catalog.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}
