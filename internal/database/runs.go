package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Run is one invocation of the watcher.
type Run struct {
	ID           string
	WatchPath    string
	Bucket       string
	Mode         string
	Status       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Uploaded     int64
	Deleted      int64
	Skipped      int64
	DeadLettered int64
	Failed       int64
	Error        string
}

// CreateRun inserts run with status "running".
func (s *SQLiteDatabase) CreateRun(ctx context.Context, run *Run) error {
	run.Status = RunStatusRunning
	if run.StartedAt.IsZero() {
		run.StartedAt = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, watch_path, bucket, mode, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.WatchPath, run.Bucket, run.Mode, run.Status, toNanos(run.StartedAt))
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and status of run.
func (s *SQLiteDatabase) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.clock.Now()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET mode = ?, status = ?, finished_at = ?,
		uploaded = ?, deleted = ?, skipped = ?, dead_lettered = ?, failed = ?, error = ?
		WHERE id = ?`,
		run.Mode, run.Status, toNanos(run.FinishedAt),
		run.Uploaded, run.Deleted, run.Skipped, run.DeadLettered, run.Failed, run.Error,
		run.ID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// FindRun returns the run with id, or nil if there is none.
func (s *SQLiteDatabase) FindRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *SQLiteDatabase) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+" ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const selectRuns = `SELECT id, watch_path, bucket, mode, status, started_at, finished_at,
	uploaded, deleted, skipped, dead_lettered, failed, error FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	err := sc.Scan(&r.ID, &r.WatchPath, &r.Bucket, &r.Mode, &r.Status, &started, &finished,
		&r.Uploaded, &r.Deleted, &r.Skipped, &r.DeadLettered, &r.Failed, &r.Error)
	if err != nil {
		return nil, err
	}
	r.StartedAt = fromNanos(started)
	if finished.Valid {
		r.FinishedAt = fromNanos(finished.Int64)
	}
	return &r, nil
}
