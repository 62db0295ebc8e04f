package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
)

func testBatch() BatchContext {
	return BatchContext{
		Term:   catalog.TermOption{Code: "202510", Label: "2025A"},
		Campus: catalog.CampusOption{Value: "D", Code: "D", Name: "CUCEI"},
		Major:  catalog.MajorOption{Code: "INCO", Name: "INGENIERIA EN COMPUTACION"},
	}
}

func rawCourse(ref string, available string) catalog.RawCourse {
	return catalog.RawCourse{
		Reference:      ref,
		SubjectCode:    "I5882",
		SubjectName:    "PROGRAMACION",
		Section:        "D01",
		Credits:        "8",
		SeatsTotal:     "40",
		SeatsAvailable: available,
		Meetings: []catalog.RawMeeting{
			{Session: "01", Hours: "0700-0855", Days: ". M . J . .", Building: "DUCT1", Room: "A001", Period: "16/01/25 - 31/05/25"},
			{Session: "01", Hours: "0900-0955", Days: "L . . . . .", Building: "", Room: "", Period: "not a date"},
		},
		Professor: &catalog.RawProfessor{Session: "01", Name: "PEREZ LOPEZ, ANA"},
	}
}

func ingest(t *testing.T, engine *Engine, store *memory.CatalogStore, courses []catalog.RawCourse) BatchResult {
	t.Helper()
	sess, err := store.Acquire(context.Background())
	require.NoError(t, err)
	defer sess.Release()
	result, err := engine.IngestBatch(context.Background(), sess, testBatch(), courses)
	require.NoError(t, err)
	return result
}

func TestIngestBatchIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	engine := New(Config{}, zap.NewNop())
	snapshot := []catalog.RawCourse{rawCourse("1001", "30"), rawCourse("1002", "12")}

	first := ingest(t, engine, store, snapshot)
	require.Equal(t, BatchResult{Persisted: 2}, first)
	before := store.Counts()

	second := ingest(t, engine, store, snapshot)
	require.Equal(t, BatchResult{Persisted: 2}, second)
	after := store.Counts()

	require.Equal(t, before, after)
	require.Equal(t, 2, after.Sections)
	require.Equal(t, 1, after.Rooms)
	// Two weekdays per section; the meeting without a room is skipped.
	require.Equal(t, 4, after.Meetings)
	require.Equal(t, 1, after.CampusMajors)
	require.Equal(t, 1, after.MajorSubjects)
}

func TestIngestBatchOverwritesSeats(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	engine := New(Config{}, zap.NewNop())

	ingest(t, engine, store, []catalog.RawCourse{rawCourse("R1", "30")})
	ingest(t, engine, store, []catalog.RawCourse{rawCourse("R1", "25")})

	require.Equal(t, 1, store.Counts().Sections)
	row, ok := store.Section("R1", "2025A")
	require.True(t, ok)
	require.Equal(t, 25, row.SeatsAvailable)
	require.Equal(t, 40, row.SeatsTotal)
}

func TestIngestBatchIsolatesBadRecord(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	store := memory.NewCatalogStore()
	engine := New(Config{}, zap.New(core))

	batch := make([]catalog.RawCourse, 5)
	for i := range batch {
		batch[i] = rawCourse(fmt.Sprintf("100%d", i+1), "10")
	}
	batch[2].Meetings[0].Period = "16/13/25 - 31/05/25"

	result := ingest(t, engine, store, batch)
	require.Equal(t, BatchResult{Persisted: 4, Failed: 1}, result)
	require.Equal(t, 4, store.Counts().Sections)
	_, ok := store.Section("1003", "2025A")
	require.False(t, ok)

	entries := logs.FilterMessage("record rolled back").All()
	require.Len(t, entries, 1)
	require.Equal(t, "1003", entries[0].ContextMap()["reference"])
}

func TestIngestBatchRollsBackPartialRecordWrites(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	engine := New(Config{}, zap.NewNop())
	sess, err := store.Acquire(context.Background())
	require.NoError(t, err)

	failing := &failingSession{Session: sess, failMeeting: true}
	result, err := engine.IngestBatch(context.Background(), failing, testBatch(), []catalog.RawCourse{rawCourse("1001", "30")})
	require.NoError(t, err)
	require.Equal(t, BatchResult{Failed: 1}, result)

	counts := store.Counts()
	require.Zero(t, counts.Sections)
	require.Zero(t, counts.Rooms)
	require.Zero(t, counts.Subjects)
	require.Equal(t, 1, counts.Terms)
	require.Equal(t, 1, counts.CampusMajors)
}

func TestIngestBatchEmptyStillRecordsDimensions(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	result := ingest(t, New(Config{}, nil), store, nil)
	require.Equal(t, BatchResult{}, result)

	counts := store.Counts()
	require.Equal(t, 1, counts.Terms)
	require.Equal(t, 1, counts.Campuses)
	require.Equal(t, 1, counts.Majors)
	require.Equal(t, 1, counts.CampusMajors)
	code, _ := store.CampusCode("CUCEI")
	require.Equal(t, "D", code)
}

func TestIngestBatchUsesProfessorSentinel(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	course := rawCourse("1001", "30")
	course.Professor = nil
	ingest(t, New(Config{Professor: "STAFF"}, nil), store, []catalog.RawCourse{course})

	sess, err := store.Acquire(context.Background())
	require.NoError(t, err)
	tx, err := sess.Begin(context.Background())
	require.NoError(t, err)
	_, created, err := tx.Professor(context.Background(), "STAFF")
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, tx.Rollback(context.Background()))
}

func TestIngestBatchBeginFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("pool closed")
	result, err := New(Config{}, nil).IngestBatch(context.Background(), &brokenSession{err: boom}, testBatch(),
		[]catalog.RawCourse{rawCourse("1001", "1")})
	require.ErrorIs(t, err, boom)
	require.Equal(t, BatchResult{Failed: 1}, result)
}

type brokenSession struct {
	err error
}

func (b *brokenSession) Begin(context.Context) (catalog.Tx, error) { return nil, b.err }
func (b *brokenSession) Release()                                  {}

// failingSession wraps every transaction so Meeting writes fail.
type failingSession struct {
	catalog.Session
	failMeeting bool
}

func (f *failingSession) Begin(ctx context.Context) (catalog.Tx, error) {
	tx, err := f.Session.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failMeeting: f.failMeeting}, nil
}

type failingTx struct {
	catalog.Tx
	failMeeting bool
}

func (f *failingTx) Begin(ctx context.Context) (catalog.Tx, error) {
	tx, err := f.Tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failMeeting: f.failMeeting}, nil
}

func (f *failingTx) Meeting(ctx context.Context, m catalog.Meeting) (int64, bool, error) {
	if f.failMeeting {
		return 0, false, errors.New("unique violation")
	}
	return f.Tx.Meeting(ctx, m)
}
