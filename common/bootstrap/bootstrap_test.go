package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lyzr/glbconvert/common/cache"
	"github.com/lyzr/glbconvert/common/config"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ENABLE_METRICS", "false")
	cfg, err := config.Load("glbconvert-test")
	require.NoError(t, err)
	return cfg
}

func TestSetup_Minimal(t *testing.T) {
	ctx := context.Background()
	c, err := Setup(ctx, "glbconvert-test",
		WithCustomConfig(testConfig(t)),
		WithCustomLogger(logger.Nop()),
	)
	require.NoError(t, err)
	defer c.Shutdown(ctx)

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	assert.Nil(t, c.Telemetry)
	assert.NotNil(t, c.Metrics)
	assert.NotNil(t, c.Registry)
	assert.IsType(t, &cache.MemoryCache{}, c.Cache)
	assert.NoError(t, c.Health(ctx))
}

func TestSetup_RedisBackedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mustPort(t, mr.Port())

	ctx := context.Background()
	c, err := Setup(ctx, "glbconvert-test",
		WithCustomConfig(cfg),
		WithCustomLogger(logger.Nop()),
	)
	require.NoError(t, err)

	require.NotNil(t, c.Redis)
	assert.IsType(t, &cache.RedisCache{}, c.Cache)
	assert.NoError(t, c.Health(ctx))

	require.NoError(t, c.Shutdown(ctx))
}

func TestSetup_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mustPort(t, mr.Port())
	mr.Close()

	_, err := Setup(context.Background(), "glbconvert-test",
		WithCustomConfig(cfg),
		WithCustomLogger(logger.Nop()),
	)
	assert.Error(t, err)
}

func TestSetup_WithoutOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Telemetry.EnableMetrics = true

	ctx := context.Background()
	c, err := Setup(ctx, "glbconvert-test",
		WithCustomConfig(cfg),
		WithCustomLogger(logger.Nop()),
		WithoutRedis(),
		WithoutCache(),
		WithoutTelemetry(),
	)
	require.NoError(t, err)
	defer c.Shutdown(ctx)

	assert.Nil(t, c.Redis)
	assert.Nil(t, c.Cache)
	assert.Nil(t, c.Telemetry)
}
