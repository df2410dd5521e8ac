package database

import (
	"context"
	"fmt"

	"fswatcher/internal/mirror"
)

// LoadSnapshot reads the full tracked-file table.
func (s *SQLiteDatabase) LoadSnapshot(ctx context.Context) (mirror.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, modified_time FROM tracked_files")
	if err != nil {
		return nil, fmt.Errorf("loading tracked files: %w", err)
	}
	defer rows.Close()

	snap := make(mirror.Snapshot)
	for rows.Next() {
		var (
			path  string
			mtime int64
		)
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, fmt.Errorf("scanning tracked file: %w", err)
		}
		snap[path] = fromNanos(mtime)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading tracked files: %w", err)
	}
	return snap, nil
}

// ApplySnapshotDiff upserts and deletes tracked files in one transaction.
// Nothing is written if any statement fails.
func (s *SQLiteDatabase) ApplySnapshotDiff(ctx context.Context, upserts mirror.Snapshot, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if len(upserts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO tracked_files (path, modified_time) VALUES (?, ?)
			ON CONFLICT(path) DO UPDATE SET modified_time = excluded.modified_time`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, p := range upserts.Paths() {
			if _, err := stmt.ExecContext(ctx, p, toNanos(upserts[p])); err != nil {
				return fmt.Errorf("upserting %s: %w", p, err)
			}
		}
	}

	if len(deletes) > 0 {
		stmt, err := tx.PrepareContext(ctx, "DELETE FROM tracked_files WHERE path = ?")
		if err != nil {
			return fmt.Errorf("preparing delete: %w", err)
		}
		defer stmt.Close()
		for _, p := range deletes {
			if _, err := stmt.ExecContext(ctx, p); err != nil {
				return fmt.Errorf("deleting %s: %w", p, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CountTrackedFiles returns the number of rows in the tracked-file table.
func (s *SQLiteDatabase) CountTrackedFiles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracked_files").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tracked files: %w", err)
	}
	return n, nil
}
