package database

import (
	"context"
	"fmt"

	"fswatcher/internal/mirror"
)

// RecordAudit stores one audit event.
func (s *SQLiteDatabase) RecordAudit(ctx context.Context, rec *mirror.AuditRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_events
		(action, source_key, dest_key, source_bucket, dest_bucket, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Action, rec.SourceKey, rec.DestKey, rec.SourceBucket, rec.DestBucket, toNanos(ts))
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns up to limit events, newest first.
func (s *SQLiteDatabase) ListAuditEvents(ctx context.Context, limit int) ([]*mirror.AuditRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT action, source_key, dest_key, source_bucket, dest_bucket, recorded_at
		FROM audit_events ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var recs []*mirror.AuditRecord
	for rows.Next() {
		var (
			r  mirror.AuditRecord
			ts int64
		)
		if err := rows.Scan(&r.Action, &r.SourceKey, &r.DestKey, &r.SourceBucket, &r.DestBucket, &ts); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		r.Timestamp = fromNanos(ts)
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}
