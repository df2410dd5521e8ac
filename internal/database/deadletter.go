package database

import (
	"context"
	"fmt"

	"fswatcher/internal/mirror"
)

// AppendDeadLetter persists entry and sets its ID.
func (s *SQLiteDatabase) AppendDeadLetter(ctx context.Context, entry *mirror.DeadLetterEntry) error {
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = s.clock.Now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO dead_letters
		(source_path, bucket, remote_key, tags, reason, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SourcePath, entry.Bucket, entry.RemoteKey, entry.Tags, entry.Reason, toNanos(entry.EnqueuedAt))
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading dead letter id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListDeadLetters returns up to limit entries, oldest first. A limit of zero
// or less returns all entries.
func (s *SQLiteDatabase) ListDeadLetters(ctx context.Context, limit int) ([]*mirror.DeadLetterEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_path, bucket, remote_key, tags, reason, enqueued_at
		FROM dead_letters ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*mirror.DeadLetterEntry
	for rows.Next() {
		var (
			e        mirror.DeadLetterEntry
			enqueued int64
		)
		if err := rows.Scan(&e.ID, &e.SourcePath, &e.Bucket, &e.RemoteKey, &e.Tags, &e.Reason, &enqueued); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		e.EnqueuedAt = fromNanos(enqueued)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteDeadLetter removes an entry once it has been replayed.
func (s *SQLiteDatabase) DeleteDeadLetter(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM dead_letters WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting dead letter %d: %w", id, err)
	}
	return nil
}
