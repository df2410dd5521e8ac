package mirror

import (
	"context"
	"sync"
	"time"
)

// DeadLetterEntry preserves an upload that exhausted its retry budget.
type DeadLetterEntry struct {
	ID         int64
	SourcePath string
	Bucket     string
	RemoteKey  string
	Tags       string
	Reason     string
	EnqueuedAt time.Time
}

// DeadLetterStore durably appends dead-letter entries.
type DeadLetterStore interface {
	AppendDeadLetter(ctx context.Context, entry *DeadLetterEntry) error
}

// DeadLetterQueue is the append-only list of failed uploads. Entries are kept
// in memory and, when a store is configured, persisted.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	store   DeadLetterStore
	logger  Logger
}

// NewDeadLetterQueue creates a queue. store may be nil.
func NewDeadLetterQueue(store DeadLetterStore, logger Logger) *DeadLetterQueue {
	return &DeadLetterQueue{store: store, logger: logger}
}

// Append records entry. Persistence failures are logged.
func (q *DeadLetterQueue) Append(ctx context.Context, entry DeadLetterEntry) {
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	q.logger.Warn("dead-lettered upload", "path", entry.SourcePath, "bucket", entry.Bucket, "key", entry.RemoteKey, "reason", entry.Reason)

	if q.store == nil {
		return
	}
	if err := q.store.AppendDeadLetter(ctx, &entry); err != nil {
		q.logger.Error("persisting dead letter", "path", entry.SourcePath, "error", err)
	}
}

// Entries returns a copy of the queued entries in append order.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetterEntry(nil), q.entries...)
}

func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
