package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultSessionTTL is how long a session is used before it is reissued.
const DefaultSessionTTL = 15 * time.Minute

// Session is a remote store handle and the time it was issued.
type Session struct {
	Store    ObjectStore
	IssuedAt time.Time
}

// SessionFactory builds a fresh store handle, refreshing credentials. It
// returns ErrBucketNotFound if the bucket does not exist.
type SessionFactory func(ctx context.Context) (ObjectStore, error)

// SessionManager hands out the current session, reissuing it lazily once it
// is older than the TTL or has been invalidated.
type SessionManager struct {
	mu      sync.Mutex
	factory SessionFactory
	ttl     time.Duration
	clock   Clock
	logger  Logger
	current *Session
	invalid bool
}

func NewSessionManager(factory SessionFactory, ttl time.Duration, clock Clock, logger Logger) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{factory: factory, ttl: ttl, clock: clock, logger: logger}
}

// Acquire returns a valid session, issuing a new one if needed.
func (m *SessionManager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.current != nil && !m.invalid && now.Sub(m.current.IssuedAt) < m.ttl {
		return m.current, nil
	}

	reason := "expired"
	switch {
	case m.current == nil:
		reason = "initial"
	case m.invalid:
		reason = "invalidated"
	}

	store, err := m.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("issuing session: %w", err)
	}
	m.current = &Session{Store: store, IssuedAt: now}
	m.invalid = false
	m.logger.Info("session issued", "reason", reason)
	return m.current, nil
}

// Invalidate forces the next Acquire to issue a new session.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalid = true
	m.logger.Warn("session invalidated")
}
