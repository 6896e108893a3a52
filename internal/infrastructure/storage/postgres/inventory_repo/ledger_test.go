package inventory_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/filter"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/postgres"
)

func TestBuildLedgerWhere(t *testing.T) {
	productID := id.New()
	out := inventory.TransactionOut
	ref := inventory.ReferenceSale
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	f := inventory.LedgerFilter{
		ListFilter: domain.ListFilter{
			AdvancedFilters: []filter.Item{{Field: "quantity", Operator: filter.Less, Value: -10}},
		},
		ProductID:     &productID,
		Type:          &out,
		ReferenceType: &ref,
		From:          &from,
	}

	q, err := buildLedgerWhere(postgres.Builder().Select("id").From(transactionsTable), f)
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id FROM inv_transactions WHERE product_id = $1 AND type = $2 AND reference_type = $3 AND created_at >= $4 AND quantity < $5",
		sql)
	assert.Equal(t, []any{productID, "OUT", "SALE", from, -10}, args)
}

func TestBuildLedgerWhere_RejectsUnknownColumn(t *testing.T) {
	f := inventory.LedgerFilter{ListFilter: domain.ListFilter{
		AdvancedFilters: []filter.Item{{Field: "password", Operator: filter.Equal, Value: "x"}},
	}}
	_, err := buildLedgerWhere(postgres.Builder().Select("id").From(transactionsTable), f)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestLedgerColumns(t *testing.T) {
	assert.Contains(t, ledgerColumns, "new_average_cost_snapshot")
	assert.Contains(t, ledgerColumns, "remaining_quantity_snapshot")
	assert.Contains(t, ledgerColumns, "seq")
	assert.Contains(t, batchColumns, "removed_at")
}

func TestLiveBatchesQuery(t *testing.T) {
	sql, args, err := liveBatches(postgres.Builder().Select("id").From(batchesTable)).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM inv_batches WHERE remaining_quantity > $1 AND removed_at IS NULL", sql)
	assert.Equal(t, []any{0}, args)
}

func TestLedgerSortKey(t *testing.T) {
	assert.Equal(t, "seq", ledgerSortKey("created_at"))
	assert.Equal(t, "-seq", ledgerSortKey("-created_at"))
	assert.Equal(t, "-quantity", ledgerSortKey("-quantity"))
	assert.Equal(t, "", ledgerSortKey(""))
}

func TestLedgerOrderQuery(t *testing.T) {
	q := postgres.ApplyOrder(postgres.Builder().Select("id").From(transactionsTable), ledgerColumns, ledgerSortKey("-created_at"), ledgerOrder)
	sql, _, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM inv_transactions ORDER BY seq DESC, id DESC", sql)

	q = postgres.ApplyOrder(postgres.Builder().Select("id").From(transactionsTable), ledgerColumns, "", ledgerOrder)
	sql, _, err = q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM inv_transactions ORDER BY seq ASC, id ASC", sql)
}
