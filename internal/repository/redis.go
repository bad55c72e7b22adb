package repository

import (
	"context"
	"fmt"
	"time"

	"atrocitee/internal/config"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "atrocitee:seen:"

// RedisIdempotencyStore remembers keys with SET NX so that concurrent
// deliveries of the same webhook are processed once across processes.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient creates a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisIdempotencyStore(client *redis.Client, prefix string) *RedisIdempotencyStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix}
}

// SeenBefore records key for ttl and reports whether it was already present.
func (r *RedisIdempotencyStore) SeenBefore(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	stored, err := r.client.SetNX(ctx, r.prefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record key in redis: %w", err)
	}
	return !stored, nil
}

func (r *RedisIdempotencyStore) Forget(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release key in redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
