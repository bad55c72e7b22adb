// Package ratelimit implements the sliding-window gate placed in front of
// rate-limited provider endpoints.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultWindow = 60 * time.Second
	safetyMargin  = 0.10
	minWait       = time.Second
)

// Limiter allows at most limit calls within any rolling window. It holds no
// knowledge of tasks or errors; callers consult it before each counted call.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time
	now    func() time.Time
}

func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{limit: limit, window: window, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

func (l *Limiter) Limit() int { return l.limit }

func (l *Limiter) Window() time.Duration { return l.window }

// CanProceed prunes expired timestamps and reports whether a call fits.
func (l *Limiter) CanProceed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.calls) < l.limit
}

// RecordCall registers a call made now.
func (l *Limiter) RecordCall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, l.now())
}

// TimeUntilNextSlot returns how long until the oldest call leaves the window,
// padded by 10% and never less than one second.
func (l *Limiter) TimeUntilNextSlot() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.untilNextSlot(l.now())
}

// Wait blocks until a slot is free and records the call atomically with the check.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.calls) < l.limit {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.untilNextSlot(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Calls reports the number of calls currently inside the window.
func (l *Limiter) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.calls)
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.calls[:0]
	for _, ts := range l.calls {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.calls = kept
}

func (l *Limiter) untilNextSlot(now time.Time) time.Duration {
	if len(l.calls) == 0 {
		return minWait
	}
	oldest := l.calls[0]
	for _, ts := range l.calls[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	wait := l.window - now.Sub(oldest)
	wait += time.Duration(float64(wait) * safetyMargin)
	if wait < minWait {
		wait = minWait
	}
	return wait
}
