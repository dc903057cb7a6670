package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "XOF", cfg.BaseCurrency)
	assert.True(t, cfg.SettlementJournalEnabled)
	assert.Equal(t, 30*time.Second, cfg.DBStatementTimeout)
	assert.Equal(t, 50, cfg.WorkerBatchSize)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("BASE_CURRENCY=eur\nAPP_PORT=9000\nJWT_SECRET=s3cret\n"), 0o600))

	t.Setenv("APP_PORT", "9100")
	t.Setenv("SETTLEMENT_JOURNAL_ENABLED", "false")
	// godotenv.Load sets variables the test did not; clean them up.
	t.Cleanup(func() {
		os.Unsetenv("BASE_CURRENCY")
		os.Unsetenv("JWT_SECRET")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "EUR", cfg.BaseCurrency)
	assert.Equal(t, "9100", cfg.AppPort)
	assert.False(t, cfg.SettlementJournalEnabled)
	assert.True(t, cfg.AuthEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad currency", func(c *Config) { c.BaseCurrency = "EURO" }},
		{"min over max", func(c *Config) { c.DBMinConns = 30 }},
		{"zero batch", func(c *Config) { c.WorkerBatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{BaseCurrency: "XOF", DBMaxConns: 20, DBMinConns: 2, WorkerBatchSize: 10}
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequireDatabase(t *testing.T) {
	assert.Error(t, (&Config{}).RequireDatabase())
	assert.NoError(t, (&Config{DatabaseURL: "postgres://x"}).RequireDatabase())
}
