// Package limiter provides the sliding-window limiter guarding outbound sends.
package limiter

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most N acquisitions per rolling window.
type Limiter interface {
	// Acquire blocks until a slot frees or ctx is cancelled.
	Acquire(ctx context.Context) error
}

// SlidingWindow is a single-process limiter: a mutex-guarded deque of
// admission timestamps trimmed to the window on every call.
type SlidingWindow struct {
	mu     sync.Mutex
	stamps []time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewSlidingWindow constructs a limiter admitting limit calls per window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if limit <= 0 {
		limit = 1
	}
	return &SlidingWindow{limit: limit, window: window, now: time.Now}
}

// Acquire blocks until a slot frees in the rolling window or ctx is cancelled.
func (l *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire either records an admission or reports how long until the oldest
// stamp leaves the window.
func (l *SlidingWindow) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	l.stamps = l.stamps[i:]

	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		return 0, true
	}
	return l.stamps[0].Sub(cutoff), false
}
