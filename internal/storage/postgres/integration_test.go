package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/database"
	"github.com/JakeFAU/catalog-crawler/internal/ingest"
	"github.com/JakeFAU/catalog-crawler/internal/storage/postgres"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "catalog",
				"POSTGRES_USER":     "catalog",
				"POSTGRES_PASSWORD": "catalog",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://catalog:catalog@%s:%s/catalog?sslmode=disable", host, port.Port())
	require.NoError(t, database.RunMigrations(dsn, zap.NewNop()))
	// A second run is a no-op.
	require.NoError(t, database.RunMigrations(dsn, zap.NewNop()))
	return dsn
}

func TestPostgresStoreIntegration(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := postgres.NewStore(ctx, postgres.StoreConfig{DSN: dsn, MaxConns: 8})
	require.NoError(t, err)
	defer store.Close()

	t.Run("ConcurrentDimensionCreation", func(t *testing.T) {
		const workers = 6
		ids := make([]int64, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sess, err := store.Acquire(ctx)
				if err != nil {
					errs[i] = err
					return
				}
				defer sess.Release()
				tx, err := sess.Begin(ctx)
				if err != nil {
					errs[i] = err
					return
				}
				ids[i], _, errs[i] = tx.Professor(ctx, "RACE, PROFESSOR")
				if errs[i] == nil {
					errs[i] = tx.Commit(ctx)
				}
			}(i)
		}
		wg.Wait()
		for i := range errs {
			require.NoError(t, errs[i])
			require.Equal(t, ids[0], ids[i])
		}
	})

	t.Run("IngestIsIdempotent", func(t *testing.T) {
		engine := ingest.New(ingest.Config{}, zap.NewNop())
		batch := ingest.BatchContext{
			Term:   catalog.TermOption{Code: "202510", Label: "2025A"},
			Campus: catalog.CampusOption{Value: "D", Code: "D", Name: "CUCEI"},
			Major:  catalog.MajorOption{Code: "INCO", Name: "INGENIERIA EN COMPUTACION"},
		}
		course := catalog.RawCourse{
			Reference:      "R1",
			SubjectCode:    "I5882",
			SubjectName:    "PROGRAMACION",
			Section:        "D01",
			Credits:        "8",
			SeatsTotal:     "40",
			SeatsAvailable: "30",
			Meetings: []catalog.RawMeeting{{
				Hours: "0700-0855", Days: ". M . J . .", Building: "DUCT1", Room: "A001", Period: "16/01/25 - 31/05/25",
			}},
		}

		sess, err := store.Acquire(ctx)
		require.NoError(t, err)
		defer sess.Release()

		has, err := store.TermHasSections(ctx, "2025A")
		require.NoError(t, err)
		require.False(t, has)

		result, err := engine.IngestBatch(ctx, sess, batch, []catalog.RawCourse{course})
		require.NoError(t, err)
		require.Equal(t, 1, result.Persisted)

		course.SeatsAvailable = "25"
		result, err = engine.IngestBatch(ctx, sess, batch, []catalog.RawCourse{course})
		require.NoError(t, err)
		require.Equal(t, 1, result.Persisted)

		has, err = store.TermHasSections(ctx, "2025A")
		require.NoError(t, err)
		require.True(t, has)
	})

	t.Run("RunStore", func(t *testing.T) {
		run := catalog.Run{
			ID:        "run-integration",
			Mode:      catalog.ModeRecent,
			Status:    catalog.RunStatusQueued,
			Submitted: time.Now().UTC(),
		}
		require.NoError(t, store.CreateRun(ctx, run))
		require.NoError(t, store.StartRun(ctx, run.ID, []string{"2025A"}))
		require.NoError(t, store.FinishRun(ctx, run.ID, catalog.RunStatusSucceeded, "", catalog.RunCounters{Jobs: 3}))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		require.Equal(t, catalog.RunStatusSucceeded, got.Status)
		require.Equal(t, []string{"2025A"}, got.Terms)
		require.Equal(t, int64(3), got.Counters.Jobs)
		require.NotNil(t, got.Finished)

		runs, err := store.ListRuns(ctx, 10)
		require.NoError(t, err)
		require.NotEmpty(t, runs)
	})
}
