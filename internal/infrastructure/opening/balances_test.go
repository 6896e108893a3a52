package opening_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/opening"
	"stockledger/internal/infrastructure/storage/memory"
)

var (
	productA = id.MustParse("0190d1a0-0000-7000-8000-00000000000a")
	productB = id.MustParse("0190d1a0-0000-7000-8000-00000000000b")
)

func TestReadCSV(t *testing.T) {
	in := strings.Join([]string{
		"Product_ID,quantity,unit_cost,batch_code,expiry_date",
		productA.String() + ",100,10,OB-1,2027-01-31",
		"",
		productB.String() + ",5,2.5,,",
	}, "\n")

	got, err := opening.ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 2, got[0].Line)
	assert.Equal(t, productA, got[0].ProductID)
	assert.Equal(t, int64(100), got[0].Quantity)
	assert.Equal(t, "OB-1", got[0].BatchCode)
	require.NotNil(t, got[0].ExpiryDate)
	assert.Equal(t, "2027-01-31", got[0].ExpiryDate.Format("2006-01-02"))

	assert.Equal(t, productB, got[1].ProductID)
	assert.True(t, types.MustMoney("2.5").Equal(got[1].UnitCost))
	assert.Nil(t, got[1].ExpiryDate)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		column string
	}{
		{"missing column", "product_id,quantity\n", "unit_cost"},
		{"bad id", "product_id,quantity,unit_cost\nnope,1,1\n", "product_id"},
		{"zero quantity", "product_id,quantity,unit_cost\n" + productA.String() + ",0,1\n", "quantity"},
		{"negative cost", "product_id,quantity,unit_cost\n" + productA.String() + ",1,-1\n", "unit_cost"},
		{"bad date", "product_id,quantity,unit_cost,expiry_date\n" + productA.String() + ",1,1,31/01/2027\n", "expiry_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := opening.ReadCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, tt.column, appErr.Details["column"])
		})
	}

	_, err := opening.ReadCSV(strings.NewReader(""))
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestReadFile_Workbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"product_id", "quantity", "unit_cost"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{productA.String(), 12, "3.75"}))
	path := filepath.Join(t.TempDir(), "opening.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	got, err := opening.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(12), got[0].Quantity)
	assert.True(t, types.MustMoney("3.75").Equal(got[0].UnitCost))
}

func TestLoad(t *testing.T) {
	store := memory.NewStore()
	engine := inventory.NewService(store, store, store)

	balances := []opening.Balance{
		{Line: 2, ProductID: productA, Quantity: 100, UnitCost: types.MustMoney("10")},
		{Line: 3, ProductID: productA, Quantity: 50, UnitCost: types.MustMoney("13")},
		{Line: 4, ProductID: productB, Quantity: 4, UnitCost: types.MustMoney("2.5"), BatchCode: "B-7"},
	}
	sum, err := opening.Load(context.Background(), store, engine, "opening.csv", balances)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Lines)
	assert.Equal(t, 2, sum.Products)
	assert.Equal(t, int64(154), sum.Quantity)
	assert.True(t, types.MustMoney("1660").Equal(sum.Value), "got %s", sum.Value)

	wac, err := engine.GetWeightedAverageCost(context.Background(), productA)
	require.NoError(t, err)
	assert.True(t, types.MustMoney("11").Equal(wac), "got %s", wac)

	entries, err := engine.ListTransactions(context.Background(), productB)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ReferenceType)
	assert.Equal(t, inventory.ReferenceOpening, *entries[0].ReferenceType)
}

func TestLoad_AllOrNothing(t *testing.T) {
	store := memory.NewStore()
	engine := inventory.NewService(store, store, store)

	_, err := opening.Load(context.Background(), store, engine, "bad.csv", []opening.Balance{
		{Line: 2, ProductID: productA, Quantity: 10, UnitCost: types.MustMoney("1")},
		{Line: 3, ProductID: productB, Quantity: 0, UnitCost: types.MustMoney("1")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")

	batches, err := engine.ListBatches(context.Background(), productA)
	require.NoError(t, err)
	assert.Empty(t, batches)

	_, err = opening.Load(context.Background(), store, engine, "empty.csv", nil)
	assert.Error(t, err)
}
