package mirror_test

import (
	"context"
	"testing"

	"fswatcher/internal/mirror"
	"fswatcher/internal/testutil"
)

func TestDeadLetterQueue(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t, testutil.FixedClock())
	q := mirror.NewDeadLetterQueue(db, mirror.NewNopLogger())

	q.Append(ctx, mirror.DeadLetterEntry{SourcePath: "/watch/a", Bucket: "b", RemoteKey: "a", Reason: "timeout"})
	q.Append(ctx, mirror.DeadLetterEntry{SourcePath: "/watch/b", Bucket: "b", RemoteKey: "b", Reason: "timeout"})

	entries := q.Entries()
	if q.Len() != 2 || entries[0].SourcePath != "/watch/a" || entries[1].SourcePath != "/watch/b" {
		t.Errorf("entries = %+v, want append order", entries)
	}

	persisted, err := db.ListDeadLetters(ctx, 0)
	if err != nil {
		t.Fatalf("ListDeadLetters() error = %v", err)
	}
	if len(persisted) != 2 {
		t.Errorf("persisted = %d, want 2", len(persisted))
	}
}

func TestDeadLetterQueue_WithoutStore(t *testing.T) {
	q := mirror.NewDeadLetterQueue(nil, mirror.NewNopLogger())
	q.Append(context.Background(), mirror.DeadLetterEntry{SourcePath: "/watch/a"})
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}
