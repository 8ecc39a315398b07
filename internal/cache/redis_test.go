package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)

	c, err := NewRedisCache(context.Background(), "redis://"+srv.Addr()+"/0", "kc:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, srv
}

func TestRedisCache_GetSetDelete(t *testing.T) {
	c, srv := newTestRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "area:https://a.test/")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "area:https://a.test/", "technology", time.Hour))
	val, err := c.Get(ctx, "area:https://a.test/")
	require.NoError(t, err)
	assert.Equal(t, "technology", val)

	raw, err := srv.Get("kc:area:https://a.test/")
	require.NoError(t, err)
	assert.Equal(t, "technology", raw, "keys are stored under the prefix")
	assert.Equal(t, time.Hour, srv.TTL("kc:area:https://a.test/"))

	require.NoError(t, c.Delete(ctx, "area:https://a.test/"))
	_, err = c.Get(ctx, "area:https://a.test/")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Delete(ctx, "never-set"))
	require.NoError(t, c.Ping(ctx))
}

func TestRedisCache_SetNX(t *testing.T) {
	c, srv := newTestRedis(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "run:docs", "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "run:docs", "run-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock is held")

	val, err := c.Get(ctx, "run:docs")
	require.NoError(t, err)
	assert.Equal(t, "run-1", val)

	srv.FastForward(2 * time.Minute)
	ok, err = c.SetNX(ctx, "run:docs", "run-3", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock can be taken again")
}

func TestRedisCache_ServerGone(t *testing.T) {
	c, srv := newTestRedis(t)
	ctx := context.Background()
	srv.Close()

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)

	assert.Error(t, c.Set(ctx, "k", "v", 0))
	_, err = c.SetNX(ctx, "k", "v", 0)
	assert.Error(t, err)
	assert.Error(t, c.Delete(ctx, "k"))
}
