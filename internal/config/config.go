// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration shared by every binary.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	AppPort  string `envconfig:"APP_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL        string        `envconfig:"DATABASE_URL"`
	DBMaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"20"`
	DBMinConns         int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	DBStatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"30s"`

	// RedisAddr is optional; empty disables the rate cache.
	RedisAddr    string        `envconfig:"REDIS_ADDR"`
	RateCacheTTL time.Duration `envconfig:"RATE_CACHE_TTL" default:"1h"`

	// JWTSecret is optional; empty disables authentication.
	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"tradeledger"`

	BaseCurrency             string `envconfig:"BASE_CURRENCY" default:"XOF"`
	SettlementJournalEnabled bool   `envconfig:"SETTLEMENT_JOURNAL_ENABLED" default:"true"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	WorkerBatchSize    int           `envconfig:"WORKER_BATCH_SIZE" default:"50"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`

	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

// Load reads an optional .env file (files listed in envFiles, or ".env"),
// then the environment. Variables already set win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	c.BaseCurrency = strings.ToUpper(strings.TrimSpace(c.BaseCurrency))
	if len(c.BaseCurrency) != 3 {
		return fmt.Errorf("BASE_CURRENCY must be a 3-letter code, got %q", c.BaseCurrency)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.WorkerBatchSize <= 0 {
		return errors.New("WORKER_BATCH_SIZE must be positive")
	}
	return nil
}

// RequireDatabase fails when DATABASE_URL is unset.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// AuthEnabled reports whether bearer tokens are checked.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}
