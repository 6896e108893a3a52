package migrations_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/migrations"
)

func TestNames_Ordered(t *testing.T) {
	names, err := migrations.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_inventory.sql", "0002_system.sql"}, names)
}

func TestSchemaCoversRepositories(t *testing.T) {
	var all string
	names, err := migrations.Names()
	require.NoError(t, err)
	for _, n := range names {
		sql, err := migrations.Read(n)
		require.NoError(t, err)
		all += sql
	}

	for _, table := range []string{
		"inv_batches", "inv_transactions", "inv_receipts", "inv_receipt_items",
		"cat_product_prices", "sys_outbox", "sys_outbox_dlq", "sys_audit",
		"sys_idempotency", "sys_sequences",
	} {
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+table+" ", table)
	}
	assert.Contains(t, all, "pg_notify('stock_changed'")
	assert.Contains(t, all, "BEFORE UPDATE OR DELETE ON inv_transactions")
	assert.Contains(t, all, "seq                         BIGINT GENERATED ALWAYS AS IDENTITY")
	assert.Contains(t, all, "ON inv_transactions (product_id, seq)")
	assert.Contains(t, all, "'REVALUATION'")
}
