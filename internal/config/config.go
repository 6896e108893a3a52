// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration shared by the server, worker and seed.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	AppPort  int    `envconfig:"APP_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL        string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"20"`
	DBStatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"30s"`
	DBLockTimeout      time.Duration `envconfig:"DB_LOCK_TIMEOUT" default:"5s"`
	DBIsolation        string        `envconfig:"DB_ISOLATION" default:"read_committed"`

	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"5m"`

	IdempotencyEnabled bool          `envconfig:"IDEMPOTENCY_ENABLED" default:"true"`
	IdempotencyTTL     time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	PubSubProjectID       string `envconfig:"PUBSUB_PROJECT_ID"`
	PubSubTopic           string `envconfig:"PUBSUB_TOPIC" default:"stock-movements"`
	PubSubCredentialsJSON string `envconfig:"PUBSUB_CREDENTIALS_JSON"`

	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s"`
	WACAuditCron       string        `envconfig:"WAC_AUDIT_CRON" default:"0 3 * * *"`
	WorkerConcurrency  int           `envconfig:"WORKER_CONCURRENCY" default:"2"`

	LowStockThreshold int64 `envconfig:"LOW_STOCK_THRESHOLD" default:"10"`
	ExpiryWindowDays  int   `envconfig:"EXPIRY_WINDOW_DAYS" default:"30"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads an optional .env file (variables already set win) and then
// the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.DBIsolation {
	case "read_committed", "repeatable_read", "serializable":
	default:
		return fmt.Errorf("DB_ISOLATION: unsupported value %q", c.DBIsolation)
	}
	if c.AppPort <= 0 || c.AppPort > 65535 {
		return fmt.Errorf("APP_PORT: out of range: %d", c.AppPort)
	}
	if c.OutboxBatchSize <= 0 {
		return errors.New("OUTBOX_BATCH_SIZE must be positive")
	}
	if c.LowStockThreshold < 0 {
		return errors.New("LOW_STOCK_THRESHOLD must not be negative")
	}
	if c.ExpiryWindowDays < 0 {
		return errors.New("EXPIRY_WINDOW_DAYS must not be negative")
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// PubSubEnabled reports whether outbox events go to Pub/Sub.
func (c *Config) PubSubEnabled() bool {
	return c.PubSubProjectID != ""
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.AppPort)
}
