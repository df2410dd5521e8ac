package mirror

import (
	"context"
	"sort"
	"time"
)

// Snapshot maps absolute local file paths to their modification times.
type Snapshot map[string]time.Time

// Paths returns the snapshot's paths in sorted order.
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// SnapshotStore persists the tracked-file table between reconciliation cycles.
// It is only used from the reconciliation loop.
type SnapshotStore interface {
	// LoadSnapshot reads the full tracked-file table.
	LoadSnapshot(ctx context.Context) (Snapshot, error)

	// ApplySnapshotDiff upserts and deletes rows in a single transaction.
	ApplySnapshotDiff(ctx context.Context, upserts Snapshot, deletes []string) error
}

// DiffSnapshots compares a previous and current snapshot. A path is added if
// it is new or its mtime is strictly newer; it is removed if it is no longer
// present. Both results are sorted.
func DiffSnapshots(previous, current Snapshot) (added, removed []string) {
	for p, mtime := range current {
		prev, ok := previous[p]
		if !ok || mtime.After(prev) {
			added = append(added, p)
		}
	}
	for p := range previous {
		if _, ok := current[p]; !ok {
			removed = append(removed, p)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
