package bootstrap

import (
	"context"
	"fmt"

	"github.com/lyzr/glbconvert/common/cache"
	"github.com/lyzr/glbconvert/common/config"
	"github.com/lyzr/glbconvert/common/db"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/metrics"
	"github.com/lyzr/glbconvert/common/redis"
	"github.com/lyzr/glbconvert/common/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// MetricsNamespace prefixes every exported metric
const MetricsNamespace = "glbconvert"

// recordCachePrefix namespaces conversion records in Redis
const recordCachePrefix = "glbconvert:record:"

// Setup initializes all service components
// This is the main entry point for all binaries
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := components.Config

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	}
	log := components.Logger

	log.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)

	// 3. Metrics registry
	components.Registry = prometheus.NewRegistry()
	components.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	components.Metrics = metrics.NewCollector(MetricsNamespace, components.Registry)

	// 4. Initialize database (if enabled)
	if !options.skipDB && cfg.Database.Enabled {
		log.Info("connecting to database")
		components.DB, err = db.New(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})

		if options.dbInitHook != nil {
			log.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 5. Initialize Redis (if enabled)
	if !options.skipRedis && cfg.Redis.Enabled {
		log.Info("connecting to redis", "addr", cfg.RedisAddr())
		components.Redis, err = redis.Connect(ctx, redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.addCleanup(func() error {
			log.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	// 6. Initialize cache (if not skipped)
	if !options.skipCache && cfg.Cache.Enabled {
		if components.Redis != nil {
			log.Info("initializing cache", "type", "redis")
			components.Cache = cache.NewRedisCache(components.Redis, recordCachePrefix, log)
		} else {
			log.Info("initializing cache", "type", "memory")
			components.Cache = cache.NewMemoryCache(log)
		}

		components.addCleanup(func() error {
			return components.Cache.Close()
		})
	}

	// 7. Initialize telemetry (if not skipped)
	if !options.skipTelemetry && (cfg.Telemetry.EnablePprof || cfg.Telemetry.EnableMetrics) {
		log.Info("initializing telemetry")
		components.Telemetry = telemetry.New(telemetry.Options{
			EnablePprof:   cfg.Telemetry.EnablePprof,
			PprofPort:     cfg.Telemetry.PprofPort,
			EnableMetrics: cfg.Telemetry.EnableMetrics,
			MetricsPort:   cfg.Telemetry.MetricsPort,
		}, components.Registry, log)

		if err := components.Telemetry.Start(ctx); err != nil {
			// Don't fail startup if telemetry fails
			log.Warn("failed to start telemetry", "error", err)
		}

		components.addCleanup(func() error {
			return components.Telemetry.Stop(context.Background())
		})
	}

	log.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"cache", components.Cache != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
