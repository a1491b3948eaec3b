package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := newMemoryCache(logger.Nop(), 10*time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := newMemoryCache(logger.Nop(), 5*time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Millisecond))

	assert.Eventually(t, func() bool {
		return c.Stats()["entries"] == 0
	}, time.Second, 5*time.Millisecond)

	_, ok, _ := c.Get(ctx, "short")
	assert.False(t, ok)
}

func TestMemoryCache_CloseIdempotent(t *testing.T) {
	c := NewMemoryCache(logger.Nop())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Minute))
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewRedisCache(redis.NewClient(rdb, logger.Nop()), "glbconvert:record:", logger.Nop())
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "abc", []byte(`{"digest":"abc"}`), time.Hour))
	assert.True(t, mr.Exists("glbconvert:record:abc"))

	val, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"digest":"abc"}`, string(val))

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}
