package cron

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// runHistory is how long maintenance runs are kept
const runHistory = 30 * 24 * time.Hour

// Run is one execution of a maintenance job
type Run struct {
	ID         int64
	Job        string
	StartedAt  time.Time
	FinishedAt time.Time
	Result     string // job summary, e.g. "3 summaries"
	Error      string
}

// Failed reports whether the run ended in an error
func (r Run) Failed() bool {
	return r.Error != ""
}

// Store keeps the maintenance run ledger
type Store struct {
	db *sql.DB
}

// cronParser is configured for standard 5-field cron expressions
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const schema = `
CREATE TABLE IF NOT EXISTS maintenance_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    result TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_maintenance_runs_job ON maintenance_runs(job, id);
`

// NewStore creates a run store using the provided database connection
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Record stores a finished run and drops runs older than the history window
func (s *Store) Record(ctx context.Context, run Run) (*Run, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_runs (job, started_at, finished_at, result, error)
		VALUES (?, ?, ?, ?, ?)`,
		run.Job, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Result, run.Error)
	if err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	run.ID, _ = result.LastInsertId()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM maintenance_runs WHERE started_at < ?`,
		run.StartedAt.Add(-runHistory).UTC()); err != nil {
		return nil, fmt.Errorf("prune runs: %w", err)
	}

	return &run, nil
}

// LastRun returns the newest run of job, or nil if it never ran
func (s *Store) LastRun(ctx context.Context, job string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job, started_at, finished_at, result, error
		FROM maintenance_runs
		WHERE job = ?
		ORDER BY id DESC
		LIMIT 1`, job)

	var r Run
	err := row.Scan(&r.ID, &r.Job, &r.StartedAt, &r.FinishedAt, &r.Result, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Recent returns up to limit runs across all jobs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, started_at, finished_at, result, error
		FROM maintenance_runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Job, &r.StartedAt, &r.FinishedAt, &r.Result, &r.Error); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Validate checks a 5-field cron expression
func Validate(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// ComputeNextRun calculates the next run time from a cron schedule
func ComputeNextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, err
	}

	return sched.Next(from), nil
}
