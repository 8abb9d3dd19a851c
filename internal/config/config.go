// Package config provides centralized configuration management for the tracker.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Tracking TrackingConfig
	Ingest   IngestConfig
	Database DatabaseConfig
	Events   EventsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// TrackingConfig holds settings for the remote tracking service.
type TrackingConfig struct {
	// APIURL is the base address of the tracking service.
	// API_URL is accepted for compatibility with older deployments.
	APIURL string `env:"TRACKING_API_URL" envAlt:"API_URL" default:"http://localhost:8000"`

	// Path is the lookup endpoint relative to APIURL (default: /api/track/sea)
	Path string `env:"TRACKING_PATH" default:"/api/track/sea"`

	// APIKey is sent as X-API-Key on every lookup when set
	APIKey string `env:"TRACKING_API_KEY"`

	// Timeout bounds a single lookup round trip (default: 30s)
	Timeout time.Duration `env:"TRACKING_TIMEOUT" default:"30s"`

	// MaxRetries is how many times a 5xx/429 lookup is retried (default: 0)
	MaxRetries int `env:"TRACKING_MAX_RETRIES" default:"0"`

	// MaxConcurrentRuns caps tracking runs across all manifests (default: 5)
	MaxConcurrentRuns int `env:"TRACKING_MAX_CONCURRENT_RUNS" default:"5"`

	// MaxWaitTime is how long a run waits for a free slot (default: 30s)
	MaxWaitTime time.Duration `env:"TRACKING_MAX_WAIT_TIME" default:"30s"`
}

// IngestConfig holds manifest ingestion settings.
type IngestConfig struct {
	// MaxFileSize is the maximum accepted manifest size in bytes (default: 25MB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"26214400"`

	// MatchMode selects the header vocabulary: broad, strict, or a profile
	// defined in RulesFile (default: broad)
	MatchMode string `env:"INGEST_MATCH_MODE" default:"broad"`

	// RulesFile is an optional YAML file with extra header rule profiles
	RulesFile string `env:"INGEST_RULES_FILE"`

	// HeaderSearchRows is how many leading rows are scanned for headers (default: 20)
	HeaderSearchRows int `env:"INGEST_HEADER_SEARCH_ROWS" default:"20"`

	// SessionTTL is how long an idle manifest is kept in memory (default: 12h)
	SessionTTL time.Duration `env:"INGEST_SESSION_TTL" default:"12h"`
}

// DatabaseConfig holds run-history database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty keeps run history in memory.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// EventsConfig holds ETA-change event publishing settings.
type EventsConfig struct {
	// Brokers is a comma-separated list of Kafka brokers. Empty disables publishing.
	Brokers []string `env:"KAFKA_BROKERS"`

	// Topic receives eta.changed events (default: shipment.eta-changed)
	Topic string `env:"KAFKA_TOPIC" default:"shipment.eta-changed"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Endpoint returns the full lookup URL.
func (c *TrackingConfig) Endpoint() string {
	return c.APIURL + c.Path
}
