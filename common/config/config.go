package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Storage   StorageConfig
	Tools     ToolsConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// StorageConfig holds the on-disk layout of the content-addressed cache
type StorageConfig struct {
	UploadDir   string
	OutputDir   string
	ScratchDir  string
	MaxUploadMB int
}

// ToolsConfig describes the external engines and their time bounds
type ToolsConfig struct {
	ConverterBin  string
	ConverterArgs []string // {input} and {output} are substituted
	CompressorBin string
	InstallerBin  string
	NodeBin       string

	ProbeTimeout    time.Duration
	InstallTimeout  time.Duration
	ConvertTimeout  time.Duration
	CompressTimeout time.Duration

	AutoInstall bool
}

// RedisConfig holds Redis settings (distributed digest lock + record cache)
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	LockTTL  time.Duration
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// CacheConfig holds conversion record cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// RateLimitConfig bounds uploads per client; enforced only with Redis
type RateLimitConfig struct {
	ConvertPerWindow int // 0 disables
	Window           time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 5000),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Storage: StorageConfig{
			UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
			OutputDir:   getEnv("OUTPUT_DIR", "outputs"),
			ScratchDir:  getEnv("SCRATCH_DIR", os.TempDir()),
			MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 512),
		},
		Tools: ToolsConfig{
			ConverterBin:    getEnv("CONVERTER_BIN", DefaultConverterBin),
			ConverterArgs:   getEnvFields("CONVERTER_ARGS", DefaultConverterArgs()),
			CompressorBin:   getEnv("COMPRESSOR_BIN", "gltfpack"),
			InstallerBin:    getEnv("NPM_BIN", "npm"),
			NodeBin:         getEnv("NODE_BIN", "node"),
			ProbeTimeout:    getEnvDuration("TOOL_PROBE_TIMEOUT", 3*time.Second),
			InstallTimeout:  getEnvDuration("TOOL_INSTALL_TIMEOUT", 120*time.Second),
			ConvertTimeout:  getEnvDuration("CONVERT_TIMEOUT", 10*time.Minute),
			CompressTimeout: getEnvDuration("COMPRESS_TIMEOUT", 300*time.Second),
			AutoInstall:     getEnvBool("TOOLS_AUTO_INSTALL", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LockTTL:  getEnvDuration("REDIS_LOCK_TTL", 15*time.Minute),
		},
		Database: DatabaseConfig{
			Enabled:     getEnvBool("DATABASE_ENABLED", false),
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "glbconvert"),
			User:        getEnv("POSTGRES_USER", "glbconvert"),
			Password:    getEnv("POSTGRES_PASSWORD", "glbconvert"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 10),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 1),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			ConvertPerWindow: getEnvInt("CONVERT_RATE_LIMIT", 0),
			Window:           getEnvDuration("CONVERT_RATE_WINDOW", time.Minute),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", false),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Storage.UploadDir == "" || c.Storage.OutputDir == "" {
		return fmt.Errorf("upload and output directories are required")
	}

	if c.Storage.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d MB", c.Storage.MaxUploadMB)
	}

	if c.Tools.ConverterBin == "" || c.Tools.CompressorBin == "" {
		return fmt.Errorf("converter and compressor binaries are required")
	}

	if c.Tools.ProbeTimeout <= 0 || c.Tools.ConvertTimeout <= 0 || c.Tools.CompressTimeout <= 0 {
		return fmt.Errorf("tool timeouts must be positive")
	}

	if c.RateLimit.ConvertPerWindow < 0 {
		return fmt.Errorf("invalid convert rate limit: %d", c.RateLimit.ConvertPerWindow)
	}
	if c.RateLimit.ConvertPerWindow > 0 && c.RateLimit.Window < time.Second {
		return fmt.Errorf("rate limit window must be at least 1s")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvFields splits on whitespace; arguments containing spaces cannot be expressed
func getEnvFields(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Fields(value)
	}
	return defaultValue
}
