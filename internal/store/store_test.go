package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tourcharge/internal/types"

	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "tourcharge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(id string, started time.Time) *types.BatchResult {
	r := &types.BatchResult{
		RunID:    id,
		Started:  started,
		Finished: started.Add(90 * time.Second),
	}
	r.Append(types.Result{
		Entry:          types.Entry{TourCode: "2UCKG4NCKGFD251206", Pax: 10, Amount: 500},
		ProgramCode:    "2UCKG-FD002",
		Status:         types.StatusSuccess,
		ConfirmationID: "C251206-000123",
		Timestamp:      started.Add(30 * time.Second),
	})
	r.Append(types.Result{
		Entry:     types.Entry{TourCode: "QQQQQ1", Pax: 5, Amount: 250},
		Status:    types.StatusFailed,
		Reason:    "No program code found",
		Timestamp: started.Add(60 * time.Second),
	})
	return r
}

func TestSaveRunRoundTrip(t *testing.T) {
	db := testDB(t)
	started := time.Date(2025, 12, 6, 9, 0, 0, 0, time.UTC)

	// Through the sink interface, the way the orchestrator delivers it.
	require.NoError(t, db.Emit(sampleRun("run-1", started)))

	runs, err := db.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "run-1", runs[0].RunID)
	require.Equal(t, 2, runs[0].Total)
	require.Equal(t, 1, runs[0].Successful)
	require.Equal(t, 1, runs[0].Failed)
	require.True(t, runs[0].Started.Equal(started))
	require.True(t, runs[0].Finished.Equal(started.Add(90*time.Second)))

	results, err := db.RunResults(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, "2UCKG4NCKGFD251206", results[0].TourCode)
	require.Equal(t, "2UCKG-FD002", results[0].ProgramCode)
	require.Equal(t, 10, results[0].Pax)
	require.Equal(t, float64(500), results[0].Amount)
	require.Equal(t, types.StatusSuccess, results[0].Status)
	require.Equal(t, "C251206-000123", results[0].ConfirmationID)
	require.Empty(t, results[0].Reason)
	require.True(t, results[0].Timestamp.Equal(started.Add(30*time.Second)))

	require.Equal(t, "QQQQQ1", results[1].TourCode)
	require.Empty(t, results[1].ProgramCode, "NULL program code reads back empty")
	require.Equal(t, types.StatusFailed, results[1].Status)
	require.Equal(t, "No program code found", results[1].Reason)
}

func TestRunsNewestFirst(t *testing.T) {
	db := testDB(t)
	base := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, db.SaveRun(context.Background(), run))
	}

	runs, err := db.Runs(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].RunID)
	require.Equal(t, "run-1", runs[1].RunID)
}

func TestRunLookup(t *testing.T) {
	db := testDB(t)
	started := time.Date(2025, 12, 6, 14, 30, 0, 0, time.UTC)
	require.NoError(t, db.SaveRun(context.Background(), sampleRun("run-1", started)))

	run, err := db.Run(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	require.Equal(t, 2, run.Total)
	require.True(t, run.Started.Equal(started))

	missing, err := db.Run(context.Background(), "run-404")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRunResultsUnknownRun(t *testing.T) {
	db := testDB(t)
	results, err := db.RunResults(context.Background(), "nope")
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	db := testDB(t)
	started := time.Date(2025, 12, 6, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveRun(context.Background(), sampleRun("run-1", started)))
	require.Error(t, db.SaveRun(context.Background(), sampleRun("run-1", started)))

	// The failed transaction must not leave partial rows behind.
	results, err := db.RunResults(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
}
