// Package store persists batch runs: a SQLite history of every run and
// its per-entry results, a timestamped results CSV per run, and the
// reader for the operator's entry CSV exports.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tourcharge/internal/logging"
	"tourcharge/internal/types"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id          TEXT PRIMARY KEY,
  started_at  TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  total       INTEGER NOT NULL,
  successful  INTEGER NOT NULL,
  failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
  id           INTEGER PRIMARY KEY,
  run_id       TEXT NOT NULL REFERENCES runs(id),
  tour_code    TEXT NOT NULL,
  program_code TEXT,
  pax          INTEGER NOT NULL,
  amount       REAL NOT NULL,
  status       TEXT NOT NULL CHECK (status IN ('SUCCESS','FAILED')),
  expense_no   TEXT,
  reason       TEXT,
  created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
CREATE INDEX IF NOT EXISTS idx_results_tour ON results(tour_code);
`

// DB is the run-history store. Safe for concurrent use; writes are
// serialized on a single connection.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*DB, error) {
	timer := logging.StartTimer(logging.CategoryStore, "open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logging.Store("run store opened at %s", path)
	return &DB{db: db, path: path}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// SaveRun records a finished run and all its results in one transaction.
func (d *DB) SaveRun(ctx context.Context, result *types.BatchResult) (err error) {
	timer := logging.StartTimer(logging.CategoryStore, "save_run")
	defer timer.Stop()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs(id, started_at, finished_at, total, successful, failed) VALUES(?,?,?,?,?,?)`,
		result.RunID,
		result.Started.UTC().Format(time.RFC3339),
		result.Finished.UTC().Format(time.RFC3339),
		result.Total(), result.Succeeded(), result.Failed(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, r := range result.Results {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO results(run_id, tour_code, program_code, pax, amount, status, expense_no, reason, created_at) VALUES(?,?,?,?,?,?,?,?,?)`,
			result.RunID, r.TourCode, nullIfEmpty(r.ProgramCode), r.Pax, r.Amount,
			string(r.Status), nullIfEmpty(r.ConfirmationID), nullIfEmpty(r.Reason),
			r.Timestamp.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("insert result %s: %w", r.TourCode, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logging.Store("saved run %s (%s)", result.RunID, result.Summary())
	return nil
}

// Emit implements the batch sink over SaveRun. It uses its own deadline
// because the run context may already be canceled when results land.
func (d *DB) Emit(result *types.BatchResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.SaveRun(ctx, result)
}

// RunSummary is one row of run history.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
}

// Runs returns the most recent runs, newest first. A non-positive limit
// returns the default page of 20.
func (d *DB) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total, successful, failed FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		var started, finished string
		if err := rows.Scan(&s.RunID, &started, &finished, &s.Total, &s.Successful, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.Started = parseStored(started)
		s.Finished = parseStored(finished)
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// Run returns one run's summary, or nil when the id is unknown.
func (d *DB) Run(ctx context.Context, runID string) (*RunSummary, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, total, successful, failed FROM runs WHERE id = ?`, runID)

	var s RunSummary
	var started, finished string
	err := row.Scan(&s.RunID, &started, &finished, &s.Total, &s.Successful, &s.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	s.Started = parseStored(started)
	s.Finished = parseStored(finished)
	return &s, nil
}

// RunResults returns a run's per-entry results in insertion order.
func (d *DB) RunResults(ctx context.Context, runID string) ([]types.Result, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT tour_code, program_code, pax, amount, status, expense_no, reason, created_at FROM results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []types.Result
	for rows.Next() {
		var (
			r                          types.Result
			program, expenseNo, reason sql.NullString
			status, created            string
		)
		if err := rows.Scan(&r.TourCode, &program, &r.Pax, &r.Amount, &status, &expenseNo, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.ProgramCode = program.String
		r.Status = types.Status(status)
		r.ConfirmationID = expenseNo.String
		r.Reason = reason.String
		r.Timestamp = parseStored(created)
		results = append(results, r)
	}
	return results, rows.Err()
}

// parseStored reads the RFC3339 timestamps written by SaveRun.
func parseStored(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
