// Package config holds the typed runtime configuration for the gateway.
// Values come from environment variables (bootstrapped from .env by the
// caller); each concern has a Default constructor with the built-in values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates all gateway configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// StoreURI is the PostgreSQL DSN for all persisted state.
	StoreURI string

	// SourceURI selects the event source: a postgres:// DSN for the
	// relational poller or a nats:// URL for the stream consumer.
	SourceURI string

	// RedisAddr enables the Redis rate-limiter backend when set.
	RedisAddr     string
	RedisPassword string

	// APIKey guards the operator surface (DLQ, execution logs, injection).
	APIKey string

	// JWTSecret verifies JWT inbound auth when an integration uses it.
	JWTSecret string

	Workers   WorkersConfig
	Audit     AuditConfig
	Sandbox   SandboxConfig
	Retry     RetryConfig
	Redaction RedactionConfig
}

// Load builds the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		StoreURI:      os.Getenv("STORE_URI"),
		SourceURI:     os.Getenv("SOURCE_URI"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		APIKey:        os.Getenv("API_KEY"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		Workers:       DefaultWorkersConfig(),
		Audit:         DefaultAuditConfig(),
		Sandbox:       DefaultSandboxConfig(),
		Retry:         DefaultRetryConfig(),
		Redaction:     DefaultRedactionConfig(),
	}

	if cfg.StoreURI == "" {
		return nil, fmt.Errorf("STORE_URI is required")
	}

	cfg.Workers.applyEnv()
	cfg.Audit.applyEnv()

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
