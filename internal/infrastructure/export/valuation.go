// Package export renders reports as xlsx workbooks.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"stockledger/internal/domain/reports"
)

const valuationSheet = "Valuation"

var valuationHeaders = []string{"Product", "Quantity", "Batches", "Average cost", "Value"}

// Excel implements reports.ValuationExporter.
type Excel struct{}

var _ reports.ValuationExporter = Excel{}

// NewExcel creates the exporter.
func NewExcel() Excel { return Excel{} }

// Valuation writes one row per product followed by a totals row.
func (Excel) Valuation(report *reports.ValuationReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", valuationSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(valuationSheet, "A1", &valuationHeaders); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(valuationSheet, "A1", "E1", headerStyle); err != nil {
		return nil, err
	}

	row := 2
	for _, it := range report.Items {
		cells := []any{
			it.ProductID.String(),
			it.Quantity,
			it.BatchCount,
			it.AverageCost.InexactFloat64(),
			it.Value.InexactFloat64(),
		}
		if err := f.SetSheetRow(valuationSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return nil, err
		}
		row++
	}

	totals := []any{
		"Total",
		report.TotalQuantity,
		report.ProductCount,
		report.AverageCost.InexactFloat64(),
		report.TotalValue.InexactFloat64(),
	}
	if err := f.SetSheetRow(valuationSheet, fmt.Sprintf("A%d", row), &totals); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(valuationSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("E%d", row), headerStyle); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(valuationSheet, "D2", fmt.Sprintf("E%d", row), moneyStyle); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(valuationSheet, "A", "A", 38); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
