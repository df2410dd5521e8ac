package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"fswatcher/internal/mirror"
)

const defaultQueueSize = 256

type queued struct {
	ctx context.Context
	n   mirror.Notification
}

// Async hands notifications to a background sender so callers never wait on
// the network. When the queue is full new notifications are dropped.
type Async struct {
	next   mirror.Notifier
	logger mirror.Logger

	mu     sync.Mutex
	closed bool
	queue  chan queued
	wg     sync.WaitGroup

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

var _ mirror.Notifier = (*Async)(nil)

func NewAsync(next mirror.Notifier, size int, logger mirror.Logger) *Async {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = mirror.NewNopLogger()
	}
	a := &Async{next: next, logger: logger, queue: make(chan queued, size)}
	a.wg.Add(1)
	go a.run()
	return a
}

// Notify enqueues n and returns immediately.
func (a *Async) Notify(ctx context.Context, n mirror.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.dropped.Add(1)
		return nil
	}
	select {
	case a.queue <- queued{ctx: context.WithoutCancel(ctx), n: n}:
	default:
		a.dropped.Add(1)
		a.logger.Warn("notification queue full, dropping", "message", n.Message)
	}
	return nil
}

// Close delivers what is queued and stops the sender.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
	return nil
}

// Stats returns sent, failed and dropped counts.
func (a *Async) Stats() (sent, failed, dropped int64) {
	return a.sent.Load(), a.failed.Load(), a.dropped.Load()
}

func (a *Async) run() {
	defer a.wg.Done()
	for q := range a.queue {
		if err := a.next.Notify(q.ctx, q.n); err != nil {
			a.failed.Add(1)
			a.logger.Error("sending notification", "error", err)
			continue
		}
		a.sent.Add(1)
	}
}
