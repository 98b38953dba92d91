package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jjudge-oj/problemgen/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, limit, window), mr
}

func TestAllowWithinWindow(t *testing.T) {
	limiter, mr := newLimiter(t, 2, time.Minute)
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, err = limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	res, err = limiter.Allow(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "keys are independent")

	mr.FastForward(time.Minute + time.Second)
	res, err = limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a new window starts after expiry")
}

func TestAllowRedisDown(t *testing.T) {
	limiter, mr := newLimiter(t, 1, time.Minute)
	mr.Close()

	_, err := limiter.Allow(context.Background(), "alice")
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)

	mr := miniredis.RunT(t)
	client, err = NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.NoError(t, client.Close())
}
