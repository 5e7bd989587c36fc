package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter paces outgoing upstream requests. Wait blocks until one request
// may proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// MinInterval enforces a minimum spacing between requests. Concurrent callers
// queue up behind each other, each reserving the next free slot.
type MinInterval struct {
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func NewMinInterval(interval time.Duration) *MinInterval {
	return &MinInterval{Interval: interval}
}

func (m *MinInterval) Wait(ctx context.Context) error {
	if m.Interval <= 0 {
		return ctx.Err()
	}
	m.mu.Lock()
	now := time.Now()
	slot := m.next
	if slot.Before(now) {
		slot = now
	}
	m.next = slot.Add(m.Interval)
	m.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
