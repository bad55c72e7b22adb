package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryIdempotencyStore is the single-process fallback for Redis.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (r *MemoryIdempotencyStore) SeenBefore(_ context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if exp, ok := r.expires[key]; ok && now.Before(exp) {
		return true, nil
	}
	r.expires[key] = now.Add(ttl)
	r.sweep(now)
	return false, nil
}

func (r *MemoryIdempotencyStore) Forget(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expires, key)
	return nil
}

// sweep drops expired keys once the map grows. Caller holds r.mu.
func (r *MemoryIdempotencyStore) sweep(now time.Time) {
	if len(r.expires) < 1024 {
		return
	}
	for k, exp := range r.expires {
		if !now.Before(exp) {
			delete(r.expires, k)
		}
	}
}

func (r *MemoryIdempotencyStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expires)
}
