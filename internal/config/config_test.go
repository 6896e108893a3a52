package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/stock")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "read_committed", cfg.DBIsolation)
	assert.Equal(t, 30*time.Second, cfg.DBStatementTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, int64(10), cfg.LowStockThreshold)
	assert.Equal(t, 30, cfg.ExpiryWindowDays)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.PubSubEnabled())
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/stock")
	t.Setenv("APP_PORT", "9090")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("APP_PORT=7000\nLOW_STOCK_THRESHOLD=3\nPUBSUB_PROJECT_ID=demo\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LOW_STOCK_THRESHOLD")
		os.Unsetenv("PUBSUB_PROJECT_ID")
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.AppPort, "process env wins over .env")
	assert.Equal(t, int64(3), cfg.LowStockThreshold)
	assert.True(t, cfg.PubSubEnabled())
}

func TestLoad_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Run("database url required", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		os.Unsetenv("DATABASE_URL")
		_, err := config.Load(missing)
		assert.Error(t, err)
	})

	t.Run("bad isolation", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/stock")
		t.Setenv("DB_ISOLATION", "chaos")
		_, err := config.Load(missing)
		assert.ErrorContains(t, err, "DB_ISOLATION")
	})

	t.Run("negative threshold", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/stock")
		t.Setenv("LOW_STOCK_THRESHOLD", "-1")
		_, err := config.Load(missing)
		assert.ErrorContains(t, err, "LOW_STOCK_THRESHOLD")
	})
}
