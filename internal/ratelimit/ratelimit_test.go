package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/inspira/internal/config"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestLockerSingleHolder(t *testing.T) {
	client, srv := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()
	const key = "inspira:test:lock"

	lease, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	stranger := &Lease{client: client, key: key, token: "someone-else"}
	require.NoError(t, stranger.Release(ctx))
	require.ErrorIs(t, stranger.Extend(ctx, time.Hour), ErrLockHeld)
	require.True(t, srv.Exists(key))

	require.NoError(t, lease.Extend(ctx, 2*time.Minute))
	require.Equal(t, 2*time.Minute, srv.TTL(key))

	require.NoError(t, lease.Release(ctx))
	require.False(t, srv.Exists(key))
	_, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
}

func TestLeaseExpiresWithTTL(t *testing.T) {
	client, srv := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "inspira:test:ttl", time.Second)
	require.NoError(t, err)
	srv.FastForward(2 * time.Second)

	_, err = locker.Acquire(ctx, "inspira:test:ttl", time.Second)
	require.NoError(t, err)
	require.ErrorIs(t, lease.Extend(ctx, time.Minute), ErrLockHeld)
}

func TestNilLockerAlwaysGrants(t *testing.T) {
	var locker *Locker
	lease, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Extend(context.Background(), time.Second))
	require.NoError(t, lease.Release(context.Background()))
}

func TestWriteLimiterDeniesAfterBurst(t *testing.T) {
	client, _ := newTestClient(t)
	limiter, err := NewWriteLimiter(WriteLimiterParams{
		Config: config.Config{RateLimit: config.RateLimitConfig{Enabled: true, WriteRate: 0.001, WriteBurst: 2}},
		Client: client,
	})
	require.NoError(t, err)
	require.True(t, limiter.Enabled())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "submit-vote", 7)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := limiter.Allow(ctx, "submit-vote", 7)
	require.ErrorIs(t, err, ErrRateLimited)
	require.False(t, res.Allowed)
	require.Positive(t, res.RetryAfter)

	res, err = limiter.Allow(ctx, "submit-vote", 8)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestWriteLimiterDisabledWithoutRedis(t *testing.T) {
	limiter, err := NewWriteLimiter(WriteLimiterParams{
		Config: config.Config{RateLimit: config.RateLimitConfig{Enabled: true, WriteRate: 1, WriteBurst: 1}},
	})
	require.NoError(t, err)
	require.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "apply-to-group", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}
