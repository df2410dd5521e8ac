package mirror_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fswatcher/internal/mirror"
	"fswatcher/internal/testutil"
)

func TestSessionManager_ReissuesAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	factory, calls := testutil.CountingFactory(testutil.NewRecordingStore(), nil)
	m := mirror.NewSessionManager(factory, 0, clock, mirror.NewNopLogger())

	first, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !first.IssuedAt.Equal(clock.Now()) {
		t.Errorf("IssuedAt = %v, want %v", first.IssuedAt, clock.Now())
	}

	clock.Advance(mirror.DefaultSessionTTL - time.Minute)
	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("factory calls = %d, want 1 within the validity window", calls.Load())
	}

	clock.Advance(time.Minute)
	second, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("factory calls = %d, want 2 after expiry", calls.Load())
	}
	if second == first {
		t.Error("expired session was returned again")
	}
}

func TestSessionManager_Invalidate(t *testing.T) {
	ctx := context.Background()
	factory, calls := testutil.CountingFactory(testutil.NewRecordingStore(), nil)
	m := mirror.NewSessionManager(factory, time.Hour, testutil.FixedClock(), mirror.NewNopLogger())

	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	m.Invalidate()
	for i := 0; i < 3; i++ {
		if _, err := m.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("factory calls = %d, want exactly one reissue after Invalidate", calls.Load())
	}
}

func TestSessionManager_BucketNotFound(t *testing.T) {
	factory, _ := testutil.CountingFactory(nil, mirror.ErrBucketNotFound)
	m := mirror.NewSessionManager(factory, 0, testutil.FixedClock(), mirror.NewNopLogger())

	if _, err := m.Acquire(context.Background()); !errors.Is(err, mirror.ErrBucketNotFound) {
		t.Errorf("Acquire() error = %v, want ErrBucketNotFound", err)
	}
}
