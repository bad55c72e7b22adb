package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	clock := newClock()
	l := New(2, time.Minute).WithClock(clock.Now)

	assert.True(t, l.CanProceed())
	l.RecordCall()
	assert.True(t, l.CanProceed())
	l.RecordCall()
	assert.False(t, l.CanProceed())

	clock.Advance(59 * time.Second)
	assert.False(t, l.CanProceed())

	clock.Advance(2 * time.Second)
	assert.True(t, l.CanProceed())
	assert.Equal(t, 0, l.Calls())
}

func TestTimeUntilNextSlot(t *testing.T) {
	clock := newClock()
	l := New(2, time.Minute).WithClock(clock.Now)

	l.RecordCall()
	l.RecordCall()
	assert.Equal(t, 66*time.Second, l.TimeUntilNextSlot())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 33*time.Second, l.TimeUntilNextSlot())

	clock.Advance(29*time.Second + 500*time.Millisecond)
	assert.Equal(t, time.Second, l.TimeUntilNextSlot(), "floored at one second")
}

func TestTimeUntilNextSlotEmpty(t *testing.T) {
	l := New(2, time.Minute)
	assert.Equal(t, time.Second, l.TimeUntilNextSlot())
}

func TestRollingWindowNeverExceedsLimit(t *testing.T) {
	clock := newClock()
	l := New(3, time.Minute).WithClock(clock.Now)

	var calls []time.Time
	for i := 0; i < 400; i++ {
		if l.CanProceed() {
			l.RecordCall()
			calls = append(calls, clock.Now())
		}
		clock.Advance(time.Duration(1+i%7) * time.Second)
	}

	require.NotEmpty(t, calls)
	for i := range calls {
		inWindow := 0
		for j := i; j < len(calls) && calls[j].Sub(calls[i]) < time.Minute; j++ {
			inWindow++
		}
		assert.LessOrEqual(t, inWindow, 3)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	l := New(1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentRecord(t *testing.T) {
	l := New(1000, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CanProceed() {
				l.RecordCall()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, l.Calls())
}
