package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig

	// Core behaviour
	Hierarchy HierarchyConfig
	Versions  VersionsConfig

	// Background jobs
	Stats    StatsConfig
	Fixtures FixturesConfig

	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// HierarchyConfig holds resolver defaults
type HierarchyConfig struct {
	// Direction is "dependencies", "dependents" or "both"
	Direction string
	// MaxNodes caps a single resolution; 0 means unlimited
	MaxNodes int
}

// VersionsConfig holds version store retry settings
type VersionsConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// StatsConfig controls the storage gauge refresh job
type StatsConfig struct {
	Enabled  bool
	Schedule string
}

// FixturesConfig names a YAML file imported at startup
type FixturesConfig struct {
	Path  string
	Watch bool
}

// RateLimitConfig controls per-client rate limiting of the API. With a
// Redis client configured the limit is shared across instances.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
	Burst    int
}

// LoadConfig loads configuration from environment variables. A .env file
// in the working directory is applied first when present; variables
// already set in the environment win.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return load()
}

// LoadConfigFrom is LoadConfig with explicit env files, which must exist
func LoadConfigFrom(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}
	return LoadConfig()
}

func load() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		Hierarchy:     loadHierarchyConfig(),
		Versions:      loadVersionsConfig(),
		Stats:         loadStatsConfig(),
		Fixtures:      loadFixturesConfig(),
		RateLimit:     loadRateLimitConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("COLLAB_HOST", "0.0.0.0"),
		Port:            getEnv("COLLAB_PORT", "8080"),
		ReadTimeout:     getEnvDuration("COLLAB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("COLLAB_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("COLLAB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("COLLAB_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("COLLAB_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("COLLAB_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// SQLite config
	if path := getEnv("COLLAB_SQLITE_PATH", ""); path != "" {
		cfg.SQLitePath = path
	}

	// PostgreSQL config
	if pgURL := getEnv("COLLAB_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("COLLAB_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("COLLAB_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("COLLAB_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("COLLAB_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("COLLAB_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("COLLAB_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("COLLAB_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("COLLAB_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("COLLAB_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	cfg.CacheEnabled = getEnvBool("COLLAB_CACHE_ENABLED", cfg.CacheEnabled)
	if ttl := getEnvDuration("COLLAB_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL = ttl
	}
	if l1CacheSize := getEnvInt("COLLAB_L1_CACHE_SIZE", 0); l1CacheSize > 0 {
		cfg.L1CacheSize = l1CacheSize
	}

	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("COLLAB_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("COLLAB_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("COLLAB_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("COLLAB_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("COLLAB_OTEL_SERVICE_NAME", "collab"),
		OTelServiceVersion: getEnv("COLLAB_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("COLLAB_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("COLLAB_OTEL_SAMPLE_RATIO", 1),
	}
}

func loadHierarchyConfig() HierarchyConfig {
	return HierarchyConfig{
		Direction: getEnv("COLLAB_HIERARCHY_DIRECTION", "dependencies"),
		MaxNodes:  getEnvInt("COLLAB_HIERARCHY_MAX_NODES", 0),
	}
}

func loadVersionsConfig() VersionsConfig {
	return VersionsConfig{
		MaxAttempts:  getEnvInt("COLLAB_VERSION_MAX_ATTEMPTS", 5),
		RetryBackoff: getEnvDuration("COLLAB_VERSION_RETRY_BACKOFF", 10*time.Millisecond),
	}
}

func loadStatsConfig() StatsConfig {
	return StatsConfig{
		Enabled:  getEnvBool("COLLAB_STATS_ENABLED", true),
		Schedule: getEnv("COLLAB_STATS_SCHEDULE", "@every 1m"),
	}
}

func loadFixturesConfig() FixturesConfig {
	return FixturesConfig{
		Path:  getEnv("COLLAB_FIXTURES", ""),
		Watch: getEnvBool("COLLAB_FIXTURES_WATCH", false),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:  getEnvBool("COLLAB_RATE_LIMIT_ENABLED", false),
		Requests: getEnvInt("COLLAB_RATE_LIMIT_REQUESTS", 600),
		Window:   getEnvDuration("COLLAB_RATE_LIMIT_WINDOW", time.Minute),
		Burst:    getEnvInt("COLLAB_RATE_LIMIT_BURST", 60),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, sqlite, or postgres)", c.Storage.Type)
	}

	if _, err := storage.ParseDirection(c.Hierarchy.Direction); err != nil {
		return fmt.Errorf("invalid hierarchy direction: %w", err)
	}
	if c.Hierarchy.MaxNodes < 0 {
		return fmt.Errorf("hierarchy max nodes must not be negative")
	}
	if c.Versions.MaxAttempts < 1 {
		return fmt.Errorf("version max attempts must be at least 1")
	}

	if c.Stats.Enabled {
		if _, err := cron.ParseStandard(c.Stats.Schedule); err != nil {
			return fmt.Errorf("invalid stats schedule %q: %w", c.Stats.Schedule, err)
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit requires positive requests and window")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("rate limit burst must not be negative")
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health/metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
