package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/receipt"
)

func TestExtractDBColumns_Batch(t *testing.T) {
	cols := ExtractDBColumns[inventory.Batch]()

	assert.Equal(t, []string{
		"id", "product_id", "batch_code", "unit_cost", "original_quantity", "remaining_quantity",
		"expiry_date", "manufacturing_date", "supplier_id", "receipt_item_id",
		"created_at", "removed_at", "removed_reason",
	}, cols)
}

func TestExtractDBColumns_SkipsUntagged(t *testing.T) {
	cols := ExtractDBColumns[receipt.Receipt]()

	assert.Contains(t, cols, "code")
	assert.Contains(t, cols, "version")
	assert.NotContains(t, cols, "items")
	assert.NotContains(t, cols, "-")
}

type embeddedRow struct {
	ID id.ID `db:"id"`
}

type outerRow struct {
	embeddedRow
	Name    string `db:"name"`
	Ignored string `db:"-"`
	Plain   string
}

func TestStructToMap_Embedded(t *testing.T) {
	rowID := id.New()
	m := StructToMap(&outerRow{embeddedRow: embeddedRow{ID: rowID}, Name: "n", Ignored: "x", Plain: "p"})

	require.Len(t, m, 2)
	assert.Equal(t, rowID, m["id"])
	assert.Equal(t, "n", m["name"])
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}

func TestStructToMap_LedgerEntry(t *testing.T) {
	entry := &inventory.Transaction{
		ID:             id.New(),
		ProductID:      id.New(),
		Type:           inventory.TransactionIn,
		Quantity:       5,
		UnitCostPrice:  types.MustMoney("2.5"),
		TotalCostValue: types.MustMoney("12.5"),
		CreatedAt:      time.Now(),
	}
	m := StructToMap(entry)

	assert.Equal(t, inventory.TransactionIn, m["type"])
	assert.Equal(t, int64(5), m["quantity"])
	assert.Contains(t, m, "batch_id")
	assert.NotContains(t, m, "seq", "seq is assigned by the database")
}

func TestExtractDBColumns_KeepsReadOnly(t *testing.T) {
	cols := ExtractDBColumns[inventory.Transaction]()

	require.NotEmpty(t, cols)
	assert.Equal(t, "seq", cols[0])
	assert.Contains(t, cols, "created_at")
}

type generatedRow struct {
	ID      int64  `db:"id" insert:"-"`
	Payload string `db:"payload"`
}

func TestStructToMap_SkipsReadOnly(t *testing.T) {
	m := StructToMap(generatedRow{ID: 7, Payload: "x"})
	assert.Equal(t, map[string]any{"payload": "x"}, m)
}
