package testutil

import (
	"context"
	"errors"
	"sync"

	"fswatcher/internal/mirror"
)

var (
	_ mirror.Notifier      = (*RecordingNotifier)(nil)
	_ mirror.AuditRecorder = (*RecordingAuditRecorder)(nil)
	_ mirror.SnapshotStore = (*MemorySnapshotStore)(nil)
	_ mirror.EventSource   = (*FakeEventSource)(nil)
)

// RecordingNotifier keeps every notification it is sent.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []mirror.Notification
}

func (n *RecordingNotifier) Notify(_ context.Context, msg mirror.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns the notifications received so far.
func (n *RecordingNotifier) Sent() []mirror.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]mirror.Notification(nil), n.sent...)
}

// CountAlerts returns how many notifications had the given alert type.
func (n *RecordingNotifier) CountAlerts(alert mirror.AlertType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.Alert == alert {
			count++
		}
	}
	return count
}

// RecordingAuditRecorder keeps every audit record.
type RecordingAuditRecorder struct {
	mu      sync.Mutex
	records []mirror.AuditRecord
}

func (r *RecordingAuditRecorder) RecordAudit(_ context.Context, rec *mirror.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *RecordingAuditRecorder) Records() []mirror.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mirror.AuditRecord(nil), r.records...)
}

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// MemorySnapshotStore is an in-memory tracked-file table. When Fail is set,
// ApplySnapshotDiff returns ErrInjected without changing the table.
type MemorySnapshotStore struct {
	mu    sync.Mutex
	rows  mirror.Snapshot
	Fail  bool
	Loads int
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{rows: make(mirror.Snapshot)}
}

func (s *MemorySnapshotStore) LoadSnapshot(context.Context) (mirror.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Loads++
	out := make(mirror.Snapshot, len(s.rows))
	for p, t := range s.rows {
		out[p] = t
	}
	return out, nil
}

func (s *MemorySnapshotStore) ApplySnapshotDiff(_ context.Context, upserts mirror.Snapshot, deletes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrInjected
	}
	for p, t := range upserts {
		s.rows[p] = t
	}
	for _, p := range deletes {
		delete(s.rows, p)
	}
	return nil
}

// Rows returns a copy of the table.
func (s *MemorySnapshotStore) Rows() mirror.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(mirror.Snapshot, len(s.rows))
	for p, t := range s.rows {
		out[p] = t
	}
	return out
}

// FakeEventSource is an EventSource fed by the test.
type FakeEventSource struct {
	events chan mirror.RawEvent
	errs   chan error

	mu     sync.Mutex
	closed bool
}

func NewFakeEventSource() *FakeEventSource {
	return &FakeEventSource{
		events: make(chan mirror.RawEvent, 64),
		errs:   make(chan error, 4),
	}
}

func (s *FakeEventSource) Events() <-chan mirror.RawEvent { return s.events }
func (s *FakeEventSource) Errors() <-chan error           { return s.errs }

// Send delivers ev to the consumer.
func (s *FakeEventSource) Send(ev mirror.RawEvent) { s.events <- ev }

// Fail delivers err on the error channel.
func (s *FakeEventSource) Fail(err error) { s.errs <- err }

func (s *FakeEventSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FakeEventSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// WatchFactory returns a factory that hands out src, or fails with err.
func WatchFactory(src mirror.EventSource, err error) mirror.WatchFactory {
	return func(string) (mirror.EventSource, error) {
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}
