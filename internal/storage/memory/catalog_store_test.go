package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

func beginTx(t *testing.T, store *CatalogStore) catalog.Tx {
	t.Helper()
	sess, err := store.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(sess.Release)
	tx, err := sess.Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func TestCatalogStoreGetOrCreate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCatalogStore()
	tx := beginTx(t, store)

	id, created, err := tx.Professor(ctx, "PEREZ LOPEZ, ANA")
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := tx.Professor(ctx, "PEREZ LOPEZ, ANA")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, id, again)

	roomA, _, err := tx.Room(ctx, "A001", "DUCT1")
	require.NoError(t, err)
	roomB, created, err := tx.Room(ctx, "A001", "DEDX")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, roomA, roomB)

	require.NoError(t, tx.Commit(ctx))
	require.ErrorIs(t, tx.Commit(ctx), errTxClosed)
	require.Equal(t, 1, store.Counts().Professors)
	require.Equal(t, 2, store.Counts().Rooms)
}

func TestCatalogStoreCampusCodeIsWriteOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCatalogStore()
	tx := beginTx(t, store)

	id, _, err := tx.Campus(ctx, "CUCEI", "")
	require.NoError(t, err)
	code, ok := store.CampusCode("CUCEI")
	require.True(t, ok)
	require.Empty(t, code)

	again, created, err := tx.Campus(ctx, "CUCEI", "D")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, id, again)
	_, _, err = tx.Campus(ctx, "CUCEI", "X")
	require.NoError(t, err)

	code, _ = store.CampusCode("CUCEI")
	require.Equal(t, "D", code)
}

func TestCatalogStoreNestedRollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCatalogStore()
	tx := beginTx(t, store)

	termID, _, err := tx.Term(ctx, "2025A")
	require.NoError(t, err)

	kept, err := tx.Begin(ctx)
	require.NoError(t, err)
	sectionID, _, err := kept.Section(ctx, catalog.Section{Reference: "1001", TermID: termID, SeatsTotal: 40, SeatsAvailable: 30})
	require.NoError(t, err)
	require.NoError(t, kept.Commit(ctx))

	failed, err := tx.Begin(ctx)
	require.NoError(t, err)
	_, _, err = failed.Section(ctx, catalog.Section{Reference: "1002", TermID: termID})
	require.NoError(t, err)
	require.NoError(t, failed.UpdateSectionSeats(ctx, sectionID, 40, 1))
	_, _, err = failed.Meeting(ctx, catalog.Meeting{SectionID: sectionID, Weekday: 9})
	require.Error(t, err)
	require.NoError(t, failed.Rollback(ctx))

	require.NoError(t, tx.Commit(ctx))
	require.Equal(t, 1, store.Counts().Sections)
	row, ok := store.Section("1001", "2025A")
	require.True(t, ok)
	require.Equal(t, 30, row.SeatsAvailable)

	has, err := store.TermHasSections(ctx, "2025A")
	require.NoError(t, err)
	require.True(t, has)
	has, err = store.TermHasSections(ctx, "2024B")
	require.NoError(t, err)
	require.False(t, has)
}

func TestCatalogStoreOuterRollbackUndoesCommittedUnits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCatalogStore()
	tx := beginTx(t, store)

	termID, _, err := tx.Term(ctx, "2025A")
	require.NoError(t, err)
	unit, err := tx.Begin(ctx)
	require.NoError(t, err)
	_, _, err = unit.Section(ctx, catalog.Section{Reference: "1001", TermID: termID})
	require.NoError(t, err)
	require.NoError(t, unit.Commit(ctx))

	require.NoError(t, tx.Rollback(ctx))
	require.Equal(t, Counts{}, store.Counts())
	has, err := store.TermHasSections(ctx, "2025A")
	require.NoError(t, err)
	require.False(t, has)
}

func TestCatalogStoreConcurrentProfessorCreation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCatalogStore()

	const workers = 8
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := store.Acquire(ctx)
			require.NoError(t, err)
			defer sess.Release()
			tx, err := sess.Begin(ctx)
			require.NoError(t, err)
			id, _, err := tx.Professor(ctx, catalog.NoProfessor)
			require.NoError(t, err)
			ids[i] = id
			require.NoError(t, tx.Commit(ctx))
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		require.Equal(t, ids[0], id)
	}
	require.Equal(t, 1, store.Counts().Professors)
}

func TestCatalogStoreRollbackDoesNotStrandOtherTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCatalogStore()
	first := beginTx(t, store)

	_, created, err := first.Professor(ctx, "PEREZ LOPEZ, ANA")
	require.NoError(t, err)
	require.True(t, created)

	type outcome struct {
		id      int64
		created bool
		err     error
	}
	started := make(chan struct{})
	done := make(chan outcome, 1)
	go func() {
		sess, err := store.Acquire(ctx)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		defer sess.Release()
		close(started)
		second, err := sess.Begin(ctx)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		id, created, err := second.Professor(ctx, "PEREZ LOPEZ, ANA")
		if err != nil {
			_ = second.Rollback(ctx)
			done <- outcome{err: err}
			return
		}
		done <- outcome{id: id, created: created, err: second.Commit(ctx)}
	}()

	<-started
	select {
	case <-done:
		t.Fatal("second transaction ran while the first was still open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Rollback(ctx))
	got := <-done
	require.NoError(t, got.err)
	require.True(t, got.created)
	require.Equal(t, 1, store.Counts().Professors)
}

func TestCatalogStoreBeginHonorsContextWhileBusy(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	first := beginTx(t, store)

	sess, err := store.Acquire(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = sess.Begin(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Commit(context.Background()))
	next, err := sess.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, next.Rollback(context.Background()))
}

func TestCatalogStoreMeetingIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCatalogStore()
	tx := beginTx(t, store)

	start := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	meeting := catalog.Meeting{
		SectionID: 1,
		RoomID:    2,
		StartDate: start,
		EndDate:   start.AddDate(0, 4, 15),
		StartTime: catalog.TimeOfDay{Hour: 7},
		EndTime:   catalog.TimeOfDay{Hour: 8, Minute: 55},
		Weekday:   2,
	}
	_, created, err := tx.Meeting(ctx, meeting)
	require.NoError(t, err)
	require.True(t, created)
	_, created, err = tx.Meeting(ctx, meeting)
	require.NoError(t, err)
	require.False(t, created)

	meeting.Weekday = 4
	_, created, err = tx.Meeting(ctx, meeting)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 2, store.Counts().Meetings)
}

func TestCatalogStoreCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCatalogStore().Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
