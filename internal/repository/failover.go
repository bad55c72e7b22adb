package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"atrocitee/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverIdempotencyStore uses the primary store until it fails, then the
// fallback, probing the primary again once a minute.
type FailoverIdempotencyStore struct {
	primary  domain.IdempotencyStore
	fallback domain.IdempotencyStore
	logger   zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverIdempotencyStore(primary, fallback domain.IdempotencyStore, logger *zerolog.Logger) *FailoverIdempotencyStore {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "idempotency").Logger()
	}
	return &FailoverIdempotencyStore{
		primary:  primary,
		fallback: fallback,
		logger:   l,
		now:      time.Now,
	}
}

func (r *FailoverIdempotencyStore) SeenBefore(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !r.isDown.Load() || r.dueForRecovery() {
		seen, err := r.primary.SeenBefore(ctx, key, ttl)
		if err == nil {
			if r.isDown.CompareAndSwap(true, false) {
				r.logger.Info().Msg("primary idempotency store recovered")
			}
			return seen, nil
		}
		if !r.isDown.Swap(true) {
			r.logger.Error().Err(err).Msg("primary idempotency store failed, falling back to memory")
		}
		r.markChecked()
	}
	return r.fallback.SeenBefore(ctx, key, ttl)
}

// Forget releases key in both stores, since it may have been claimed in
// either one.
func (r *FailoverIdempotencyStore) Forget(ctx context.Context, key string) error {
	if !r.isDown.Load() {
		if err := r.primary.Forget(ctx, key); err != nil {
			if !r.isDown.Swap(true) {
				r.logger.Error().Err(err).Msg("primary idempotency store failed, falling back to memory")
			}
			r.markChecked()
		}
	}
	return r.fallback.Forget(ctx, key)
}

// Degraded reports whether calls currently go to the fallback.
func (r *FailoverIdempotencyStore) Degraded() bool {
	return r.isDown.Load()
}

func (r *FailoverIdempotencyStore) dueForRecovery() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Sub(r.lastCheck) > recoveryInterval
}

func (r *FailoverIdempotencyStore) markChecked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCheck = r.now()
}
