// Package config provides configuration loading from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/instantcocoa/periscope/pkg/cache"
	"github.com/instantcocoa/periscope/pkg/database"
)

// StorageBackend represents the storage implementation type.
type StorageBackend string

const (
	// StorageMemory keeps telemetry in process (for development/testing).
	StorageMemory StorageBackend = "memory"
	// StoragePostgres reads the Periscope tables in PostgreSQL.
	StoragePostgres StorageBackend = "postgres"
	// StorageClickHouse reads the OpenTelemetry exporter tables in ClickHouse.
	StorageClickHouse StorageBackend = "clickhouse"
)

// Base contains the configuration of a Periscope process.
type Base struct {
	// Service identification
	ServiceName string
	Environment string // development, staging, production
	Version     string

	// Server
	GRPCPort    int
	HTTPPort    int
	CORSOrigins []string

	// Storage backend
	StorageBackend StorageBackend
	QueryTimeout   time.Duration

	// Database (used when StorageBackend is "postgres")
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBMigrate  bool

	// ClickHouse (used when StorageBackend is "clickhouse")
	ClickHouseURL      string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseTimeout  time.Duration

	// Topology
	TopologyStrategy string // direct, attribute
	AddressMapFile   string

	// Redis cache and rate limiting
	CacheEnabled  bool
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateLimit     int // requests per minute per client, 0 disables

	// Observability
	OTLPEndpoint    string
	LogLevel        string
	LogFormat       string // json, text
	MetricsEnabled  bool   // Prometheus /metrics
	TracingEnabled  bool
	TracingSampling float64
	// OTLPMetricsEnabled pushes OpenTelemetry metrics to OTLPEndpoint.
	OTLPMetricsEnabled bool
}

// Load loads configuration from environment variables, after reading an
// optional .env file in the working directory.
func Load(serviceName string) (*Base, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	backend, err := parseStorageBackend(getEnv("PERISCOPE_STORAGE_BACKEND", "memory"))
	if err != nil {
		return nil, err
	}

	cfg := &Base{
		ServiceName: serviceName,
		Environment: getEnv("PERISCOPE_ENV", "development"),
		Version:     getEnv("PERISCOPE_VERSION", "dev"),

		GRPCPort:    getEnvInt("PERISCOPE_GRPC_PORT", 9000),
		HTTPPort:    getEnvInt("PERISCOPE_HTTP_PORT", 8080),
		CORSOrigins: getEnvList("PERISCOPE_CORS_ORIGINS"),

		StorageBackend: backend,
		QueryTimeout:   getEnvDuration("PERISCOPE_QUERY_TIMEOUT", 15*time.Second),

		DBHost:     getEnv("PERISCOPE_DB_HOST", "localhost"),
		DBPort:     getEnvInt("PERISCOPE_DB_PORT", 5432),
		DBUser:     getEnv("PERISCOPE_DB_USER", "periscope"),
		DBPassword: getEnv("PERISCOPE_DB_PASSWORD", ""),
		DBName:     getEnv("PERISCOPE_DB_NAME", "periscope"),
		DBSSLMode:  getEnv("PERISCOPE_DB_SSLMODE", "disable"),
		DBMigrate:  getEnvBool("PERISCOPE_DB_MIGRATE", true),

		ClickHouseURL:      getEnv("PERISCOPE_CLICKHOUSE_URL", "http://localhost:8123"),
		ClickHouseDatabase: getEnv("PERISCOPE_CLICKHOUSE_DATABASE", "otel"),
		ClickHouseUser:     getEnv("PERISCOPE_CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("PERISCOPE_CLICKHOUSE_PASSWORD", ""),
		ClickHouseTimeout:  getEnvDuration("PERISCOPE_CLICKHOUSE_TIMEOUT", 30*time.Second),

		TopologyStrategy: getEnv("PERISCOPE_TOPOLOGY_STRATEGY", "direct"),
		AddressMapFile:   getEnv("PERISCOPE_ADDRESS_MAP_FILE", ""),

		CacheEnabled:  getEnvBool("PERISCOPE_CACHE_ENABLED", false),
		CacheTTL:      getEnvDuration("PERISCOPE_CACHE_TTL", 30*time.Second),
		RedisAddr:     getEnv("PERISCOPE_REDIS_ADDR", ""),
		RedisPassword: getEnv("PERISCOPE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("PERISCOPE_REDIS_DB", 0),
		RateLimit:     getEnvInt("PERISCOPE_RATE_LIMIT", 0),

		OTLPEndpoint:    getEnv("PERISCOPE_OTLP_ENDPOINT", ""),
		LogLevel:        getEnv("PERISCOPE_LOG_LEVEL", "info"),
		LogFormat:       getEnv("PERISCOPE_LOG_FORMAT", "json"),
		MetricsEnabled:  getEnvBool("PERISCOPE_METRICS_ENABLED", true),
		TracingEnabled:  getEnvBool("PERISCOPE_TRACING_ENABLED", false),
		TracingSampling: getEnvFloat("PERISCOPE_TRACING_SAMPLING", 1.0),

		OTLPMetricsEnabled: getEnvBool("PERISCOPE_OTLP_METRICS_ENABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable fallback.
func (c *Base) Validate() error {
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive, got %s", c.QueryTimeout)
	}
	if c.CacheEnabled && c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.CacheTTL)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %d", c.RateLimit)
	}
	if (c.TracingEnabled || c.OTLPMetricsEnabled) && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP export enabled without PERISCOPE_OTLP_ENDPOINT")
	}
	if c.TracingSampling < 0 || c.TracingSampling > 1 {
		return fmt.Errorf("tracing sampling must be within [0, 1], got %g", c.TracingSampling)
	}
	return nil
}

// DatabaseConfig returns the PostgreSQL connection settings.
func (c *Base) DatabaseConfig() *database.Config {
	cfg := database.DefaultConfig()
	cfg.Host = c.DBHost
	cfg.Port = c.DBPort
	cfg.User = c.DBUser
	cfg.Password = c.DBPassword
	cfg.Database = c.DBName
	cfg.SSLMode = c.DBSSLMode
	return cfg
}

// RedisConfig returns the Redis connection settings.
func (c *Base) RedisConfig() *cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Addr = c.RedisAddr
	cfg.Password = c.RedisPassword
	cfg.DB = c.RedisDB
	return cfg
}

// UseRedis reports whether the cache and rate limiter share a Redis server.
func (c *Base) UseRedis() bool {
	return c.RedisAddr != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Base) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Base) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions

func parseStorageBackend(s string) (StorageBackend, error) {
	switch strings.ToLower(s) {
	case "memory", "mem":
		return StorageMemory, nil
	case "postgres", "postgresql", "pg":
		return StoragePostgres, nil
	case "clickhouse", "ch":
		return StorageClickHouse, nil
	default:
		return "", fmt.Errorf("unknown storage backend %q", s)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
