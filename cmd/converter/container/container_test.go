package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lyzr/glbconvert/common/bootstrap"
	"github.com/lyzr/glbconvert/common/cache"
	"github.com/lyzr/glbconvert/common/config"
	"github.com/lyzr/glbconvert/common/lock"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/process/processtest"
	"github.com/lyzr/glbconvert/common/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testComponents(t *testing.T) *bootstrap.Components {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.Load("converter")
	require.NoError(t, err)
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.OutputDir = filepath.Join(dir, "outputs")
	cfg.Storage.ScratchDir = t.TempDir()
	cfg.Tools.AutoInstall = false

	recordCache := cache.NewMemoryCache(logger.Nop())
	t.Cleanup(func() { recordCache.Close() })

	return &bootstrap.Components{
		Config: cfg,
		Logger: logger.Nop(),
		Cache:  recordCache,
	}
}

func TestNew_LocalOnly(t *testing.T) {
	components := testComponents(t)
	components.Config.RateLimit.ConvertPerWindow = 5

	c, err := New(components, processtest.NewRunner())
	require.NoError(t, err)

	assert.IsType(t, &lock.LocalLocker{}, c.Locker)
	assert.Nil(t, c.RateLimiter, "rate limiting needs Redis")
	assert.Nil(t, c.RecordRepo)
	assert.True(t, c.Records.Enabled(), "record cache is always wired")
	assert.DirExists(t, components.Config.Storage.UploadDir)
	assert.DirExists(t, components.Config.Storage.OutputDir)
}

func TestNew_RedisBacked(t *testing.T) {
	mr := miniredis.RunT(t)
	components := testComponents(t)
	components.Config.RateLimit.ConvertPerWindow = 5

	client, err := redis.Connect(context.Background(), redis.Options{Addr: mr.Addr()}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	components.Redis = client

	c, err := New(components, processtest.NewRunner())
	require.NoError(t, err)

	assert.IsType(t, &lock.RedisLocker{}, c.Locker)
	assert.NotNil(t, c.RateLimiter)
}

func TestNew_RedisWithoutLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	components := testComponents(t)

	client, err := redis.Connect(context.Background(), redis.Options{Addr: mr.Addr()}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	components.Redis = client

	c, err := New(components, processtest.NewRunner())
	require.NoError(t, err)

	assert.Nil(t, c.RateLimiter)
}

func TestProvision_ReportsMissingTools(t *testing.T) {
	components := testComponents(t)
	runner := processtest.NewRunner().
		Handle(components.Config.Tools.ConverterBin, processtest.Exit(0, ""))

	c, err := New(components, runner)
	require.NoError(t, err)

	report := c.Provision(context.Background())
	assert.True(t, report.Ready)
	assert.True(t, report.Degraded)
}
