package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_ParseConfig(t *testing.T) {
	cfg := DefaultPoolConfig("postgres://ledger:secret@db:5432/stock?sslmode=disable")
	cfg.AppName = "stockledger-worker"
	cfg.MaxConns = 8

	pc, err := cfg.ParseConfig()
	require.NoError(t, err)

	assert.Equal(t, int32(8), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, "UTC", pc.ConnConfig.RuntimeParams["timezone"])
	assert.Equal(t, "stockledger-worker", pc.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "stock", pc.ConnConfig.Database)
}

func TestPoolConfig_ParseConfigKeepsDSNDefaults(t *testing.T) {
	pc, err := PoolConfig{DSN: "postgres://db/stock?pool_max_conns=3"}.ParseConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(3), pc.MaxConns)
	assert.NotContains(t, pc.ConnConfig.RuntimeParams, "application_name")

	_, err = PoolConfig{DSN: "postgres://db:notaport/stock"}.ParseConfig()
	assert.Error(t, err)
}

func TestPool_CloseZero(t *testing.T) {
	var p *Pool
	assert.NotPanics(t, p.Close)
	assert.NotPanics(t, (&Pool{}).Close)
}
