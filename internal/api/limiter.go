package api

import (
	"sync"

	"atrocitee/internal/config"

	"golang.org/x/time/rate"
)

// keyedLimiter hands out one token bucket per API key or remote host.
type keyedLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
}

func newKeyedLimiter(cfg config.APIRateLimitConfig) *keyedLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &keyedLimiter{rps: rate.Limit(cfg.RPS), burst: burst}
}

func (l *keyedLimiter) enabled() bool {
	return l.rps > 0
}

func (l *keyedLimiter) allow(key string) bool {
	return l.get(key).Allow()
}

func (l *keyedLimiter) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := rate.NewLimiter(l.rps, l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
