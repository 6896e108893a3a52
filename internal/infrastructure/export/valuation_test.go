package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/export"
)

func TestExcel_Valuation(t *testing.T) {
	a, b := id.New(), id.New()
	report := &reports.ValuationReport{
		GeneratedAt: time.Now(),
		Items: []reports.ValuationItem{
			{ProductID: a, Quantity: 30, Value: types.MustMoney("390"), AverageCost: types.MustMoney("13"), BatchCount: 1},
			{ProductID: b, Quantity: 10, Value: types.MustMoney("20"), AverageCost: types.MustMoney("2"), BatchCount: 2},
		},
		ProductCount:  2,
		TotalQuantity: 40,
		TotalValue:    types.MustMoney("410"),
		AverageCost:   types.MustMoney("10.25"),
	}

	out, err := export.NewExcel().Valuation(report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Valuation"}, f.GetSheetList())

	rows, err := f.GetRows("Valuation", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"Product", "Quantity", "Batches", "Average cost", "Value"}, rows[0])
	assert.Equal(t, []string{a.String(), "30", "1", "13", "390"}, rows[1])
	assert.Equal(t, []string{b.String(), "10", "2", "2", "20"}, rows[2])
	assert.Equal(t, []string{"Total", "40", "2", "10.25", "410"}, rows[3])
}

func TestExcel_ValuationEmpty(t *testing.T) {
	out, err := export.NewExcel().Valuation(&reports.ValuationReport{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Valuation", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Total", rows[1][0])
}
