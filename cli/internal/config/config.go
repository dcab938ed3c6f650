// Package config provides configuration for the CLI.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds CLI configuration.
type Config struct {
	// Addr is the gRPC address of the Periscope server.
	Addr string
	// Timeout bounds each request.
	Timeout time.Duration

	// Output format
	Format string // table, json, yaml

	// Verbosity
	Verbose bool
}

// DefaultConfig returns the configuration from the environment.
func DefaultConfig() *Config {
	return &Config{
		Addr:    getEnv("PERISCOPE_ADDR", "localhost:9000"),
		Timeout: getEnvDuration("PERISCOPE_TIMEOUT", 30*time.Second),
		Format:  getEnv("PERISCOPE_FORMAT", "table"),
		Verbose: getEnvBool("PERISCOPE_VERBOSE", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
