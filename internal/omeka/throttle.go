package omeka

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces out calls to the repository
type Throttle interface {
	Wait(ctx context.Context) error
	// Defer holds every call until the given time, e.g. after a Retry-After
	Defer(until time.Time)
}

type intervalThrottle struct {
	mu       sync.Mutex
	minDelay time.Duration
	lastCall time.Time
	until    time.Time
}

// NewThrottle creates a throttle enforcing minDelay between calls
func NewThrottle(minDelay time.Duration) Throttle {
	return &intervalThrottle{minDelay: minDelay}
}

// Wait blocks until the next call is allowed
func (t *intervalThrottle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.lastCall.Add(t.minDelay)
	if t.until.After(next) {
		next = t.until
	}

	if wait := time.Until(next); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		t.mu.Unlock()
		select {
		case <-ctx.Done():
			t.mu.Lock()
			return ctx.Err()
		case <-timer.C:
			t.mu.Lock()
		}
	}

	t.lastCall = time.Now()
	return nil
}

func (t *intervalThrottle) Defer(until time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if until.After(t.until) {
		t.until = until
	}
}
