package testutil

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"fswatcher/internal/mirror"
	"fswatcher/internal/vault"
)

var _ mirror.ObjectStore = (*RecordingStore)(nil)

// RecordingStore is an in-memory object store that records calls, can inject
// errors and tracks how many calls run at once.
type RecordingStore struct {
	*vault.MemoryStore

	mu        sync.Mutex
	puts      []string
	deletes   []string
	lists     int
	putErr    error
	deleteErr error
	listErr   error
	delay     time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func NewRecordingStore() *RecordingStore {
	return &RecordingStore{MemoryStore: vault.NewMemoryStore()}
}

// SetPutErr makes every subsequent Put fail with err.
func (s *RecordingStore) SetPutErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

// SetDeleteErr makes every subsequent Delete fail with err.
func (s *RecordingStore) SetDeleteErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr = err
}

// SetListErr makes every subsequent List fail with err.
func (s *RecordingStore) SetListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// SetDelay makes Put and Delete hold for d before returning.
func (s *RecordingStore) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *RecordingStore) Put(ctx context.Context, key string, body io.Reader, tags string) error {
	s.enter()
	defer s.active.Add(-1)

	s.mu.Lock()
	s.puts = append(s.puts, key)
	err, delay := s.putErr, s.delay
	s.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return err
	}
	if err != nil {
		return err
	}
	return s.MemoryStore.Put(ctx, key, body, tags)
}

func (s *RecordingStore) Delete(ctx context.Context, key string) error {
	s.enter()
	defer s.active.Add(-1)

	s.mu.Lock()
	s.deletes = append(s.deletes, key)
	err, delay := s.deleteErr, s.delay
	s.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return err
	}
	if err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx, key)
}

func (s *RecordingStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	s.lists++
	err := s.listErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.List(ctx, prefix)
}

// Puts returns the keys passed to Put, in call order.
func (s *RecordingStore) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

// Deletes returns the keys passed to Delete, in call order.
func (s *RecordingStore) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

// Lists returns the number of List calls.
func (s *RecordingStore) Lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

// MaxConcurrent returns the highest number of simultaneous Put/Delete calls.
func (s *RecordingStore) MaxConcurrent() int {
	return int(s.maxActive.Load())
}

func (s *RecordingStore) enter() {
	n := s.active.Add(1)
	for {
		cur := s.maxActive.Load()
		if n <= cur || s.maxActive.CompareAndSwap(cur, n) {
			return
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CountingFactory returns a SessionFactory that hands out store and counts
// how many sessions were issued.
func CountingFactory(store mirror.ObjectStore, err error) (mirror.SessionFactory, *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (mirror.ObjectStore, error) {
		calls.Add(1)
		if err != nil {
			return nil, err
		}
		return store, nil
	}, &calls
}
