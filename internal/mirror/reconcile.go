package mirror

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ChangeSet is the outcome of one reconciliation cycle.
type ChangeSet struct {
	Added   []string
	Removed []string
	Scanned int
	Elapsed time.Duration
}

// Reconciler computes change sets from successive directory walks.
type Reconciler interface {
	// Seed marks paths as already mirrored before the first cycle.
	Seed(ctx context.Context, paths []string) error

	// Reconcile diffs current against the previous state and advances it.
	Reconcile(ctx context.Context, current Snapshot) (*ChangeSet, error)

	// ReportsDeletes reports whether Removed reflects a complete view of
	// local state, so that deletes may be synthesized from it.
	ReportsDeletes() bool
}

// SnapshotReconciler diffs each walk against a persisted tracked-file table.
type SnapshotReconciler struct {
	store  SnapshotStore
	clock  Clock
	logger Logger
}

var _ Reconciler = (*SnapshotReconciler)(nil)

func NewSnapshotReconciler(store SnapshotStore, clock Clock, logger Logger) *SnapshotReconciler {
	return &SnapshotReconciler{store: store, clock: clock, logger: logger}
}

// Seed records paths with the current time so files not modified since are
// not uploaded again.
func (r *SnapshotReconciler) Seed(ctx context.Context, paths []string) error {
	now := r.clock.Now()
	upserts := make(Snapshot, len(paths))
	for _, p := range paths {
		upserts[p] = now
	}
	if err := r.store.ApplySnapshotDiff(ctx, upserts, nil); err != nil {
		return fmt.Errorf("seeding snapshot: %w", err)
	}
	r.logger.Info("seeded snapshot", "paths", len(paths))
	return nil
}

// Reconcile loads the tracked table, diffs it against current and commits the
// upserts and deletes in one transaction. On a commit failure no change set is
// returned so the next cycle sees the same differences.
func (r *SnapshotReconciler) Reconcile(ctx context.Context, current Snapshot) (*ChangeSet, error) {
	start := r.clock.Now()

	previous, err := r.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	added, removed := DiffSnapshots(previous, current)
	upserts := make(Snapshot, len(added))
	for _, p := range added {
		upserts[p] = current[p]
	}

	if err := r.store.ApplySnapshotDiff(ctx, upserts, removed); err != nil {
		return nil, fmt.Errorf("committing snapshot: %w", err)
	}

	return &ChangeSet{
		Added:   added,
		Removed: removed,
		Scanned: len(current),
		Elapsed: r.clock.Now().Sub(start),
	}, nil
}

func (r *SnapshotReconciler) ReportsDeletes() bool { return true }

// ListingReconciler diffs each walk against the set of paths seen in the
// previous cycle, kept in memory. In incremental mode, paths modified since
// the previous cycle started are also reported as added.
type ListingReconciler struct {
	previous    map[string]struct{}
	lastCycle   time.Time
	incremental bool
	clock       Clock
	logger      Logger
}

var _ Reconciler = (*ListingReconciler)(nil)

func NewListingReconciler(incremental bool, clock Clock, logger Logger) *ListingReconciler {
	return &ListingReconciler{
		previous:    make(map[string]struct{}),
		incremental: incremental,
		clock:       clock,
		logger:      logger,
	}
}

func (r *ListingReconciler) Seed(_ context.Context, paths []string) error {
	for _, p := range paths {
		r.previous[p] = struct{}{}
	}
	r.logger.Info("seeded listing", "paths", len(paths))
	return nil
}

// Reconcile computes removed against the walked set before any incremental
// additions, so a path present in both resolves to added.
func (r *ListingReconciler) Reconcile(_ context.Context, current Snapshot) (*ChangeSet, error) {
	start := r.clock.Now()

	added := make(map[string]struct{})
	for p := range current {
		if _, ok := r.previous[p]; !ok {
			added[p] = struct{}{}
		}
	}

	var removed []string
	for p := range r.previous {
		if _, ok := current[p]; !ok {
			removed = append(removed, p)
		}
	}

	if r.incremental && !r.lastCycle.IsZero() {
		for p, mtime := range current {
			if mtime.After(r.lastCycle) {
				added[p] = struct{}{}
			}
		}
	}

	next := make(map[string]struct{}, len(current))
	for p := range current {
		next[p] = struct{}{}
	}
	r.previous = next
	r.lastCycle = start

	addedPaths := make([]string, 0, len(added))
	for p := range added {
		addedPaths = append(addedPaths, p)
	}
	sort.Strings(addedPaths)
	sort.Strings(removed)

	return &ChangeSet{
		Added:   addedPaths,
		Removed: removed,
		Scanned: len(current),
		Elapsed: r.clock.Now().Sub(start),
	}, nil
}

// ReportsDeletes is false: a seeded listing contains remote-only paths, so
// its removals are not evidence of local deletion.
func (r *ListingReconciler) ReportsDeletes() bool { return false }
