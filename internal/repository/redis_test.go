package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisIdempotencyStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	store := NewRedisIdempotencyStore(client, "")
	ctx := context.Background()

	t.Run("FirstDeliveryIsNew", func(t *testing.T) {
		seen, err := store.SeenBefore(ctx, "abc", time.Hour)
		require.NoError(t, err)
		assert.False(t, seen)
		assert.True(t, s.Exists(defaultKeyPrefix+"abc"))
	})

	t.Run("RepeatIsSeen", func(t *testing.T) {
		seen, err := store.SeenBefore(ctx, "abc", time.Hour)
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("ExpiresAfterTTL", func(t *testing.T) {
		_, err := store.SeenBefore(ctx, "short", time.Minute)
		require.NoError(t, err)
		s.FastForward(2 * time.Minute)

		seen, err := store.SeenBefore(ctx, "short", time.Minute)
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("CustomPrefix", func(t *testing.T) {
		other := NewRedisIdempotencyStore(client, "hooks:")
		seen, err := other.SeenBefore(ctx, "abc", time.Hour)
		require.NoError(t, err)
		assert.False(t, seen)
		assert.True(t, s.Exists("hooks:abc"))
	})

	t.Run("ForgetReleasesKey", func(t *testing.T) {
		_, err := store.SeenBefore(ctx, "retry", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Forget(ctx, "retry"))
		assert.False(t, s.Exists(defaultKeyPrefix+"retry"))

		seen, err := store.SeenBefore(ctx, "retry", time.Hour)
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("ServerDown", func(t *testing.T) {
		s.SetError("LOADING")
		defer s.SetError("")
		_, err := store.SeenBefore(ctx, "down", time.Hour)
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestRedisIdempotencyStoreNilClient(t *testing.T) {
	store := NewRedisIdempotencyStore(nil, "")
	_, err := store.SeenBefore(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}
