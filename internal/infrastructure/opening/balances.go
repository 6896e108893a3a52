// Package opening loads opening stock balances from CSV or XLSX files.
package opening

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
)

// Column names recognised in the header row. product_id, quantity and
// unit_cost are required.
const (
	colProduct = "product_id"
	colQty     = "quantity"
	colCost    = "unit_cost"
	colBatch   = "batch_code"
	colExpiry  = "expiry_date"
)

const dateLayout = "2006-01-02"

// Balance is one opening line.
type Balance struct {
	Line       int
	ProductID  id.ID
	Quantity   int64
	UnitCost   types.Money
	BatchCode  string
	ExpiryDate *time.Time
}

// ReadFile parses path by extension: .xlsx reads the first sheet, anything
// else is treated as CSV.
func ReadFile(path string) ([]Balance, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer func() { _ = f.Close() }()
		return ReadSheet(f)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

// ReadCSV parses comma separated rows with a header line.
func ReadCSV(r io.Reader) ([]Balance, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return parseRows(rows)
}

// ReadSheet parses the first sheet of a workbook.
func ReadSheet(f *excelize.File) ([]Balance, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperror.NewValidation("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return parseRows(rows)
}

func parseRows(rows [][]string) ([]Balance, error) {
	if len(rows) == 0 {
		return nil, apperror.NewValidation("file is empty")
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colProduct, colQty, colCost} {
		if _, ok := index[required]; !ok {
			return nil, apperror.NewValidation("missing column").WithDetail("column", required)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []Balance
	for n, row := range rows[1:] {
		line := n + 2
		if blank(row) {
			continue
		}
		b, err := parseRow(line, func(col string) string { return cell(row, col) })
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func parseRow(line int, get func(string) string) (Balance, error) {
	invalid := func(col, msg string) error {
		return apperror.NewValidation(msg).WithDetail("line", line).WithDetail("column", col)
	}

	b := Balance{Line: line, BatchCode: get(colBatch)}

	productID, err := id.Parse(get(colProduct))
	if err != nil {
		return b, invalid(colProduct, "invalid product id")
	}
	b.ProductID = productID

	qty, err := strconv.ParseInt(get(colQty), 10, 64)
	if err != nil || qty <= 0 {
		return b, invalid(colQty, "quantity must be a positive integer")
	}
	b.Quantity = qty

	cost, err := types.NewMoneyFromString(get(colCost))
	if err != nil || cost.IsNegative() {
		return b, invalid(colCost, "unit cost must be a non-negative number")
	}
	b.UnitCost = cost

	if raw := get(colExpiry); raw != "" {
		expiry, err := time.Parse(dateLayout, raw)
		if err != nil {
			return b, invalid(colExpiry, "expiry date must be YYYY-MM-DD")
		}
		b.ExpiryDate = &expiry
	}
	return b, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Receiver takes stock in.
type Receiver interface {
	StockIn(ctx context.Context, cmd inventory.StockInCommand) (*inventory.StockInResult, error)
}

// Summary totals a load.
type Summary struct {
	Lines    int
	Products int
	Quantity int64
	Value    types.Money
}

// Load receives every balance in one unit of work, so a bad line leaves
// nothing behind.
func Load(ctx context.Context, txm tx.Manager, receiver Receiver, source string, balances []Balance) (*Summary, error) {
	if len(balances) == 0 {
		return nil, errors.New("no balances to load")
	}

	sum := &Summary{Value: types.Zero()}
	products := make(map[id.ID]struct{})
	ref := inventory.ReferenceOpening

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, b := range balances {
			cmd := inventory.StockInCommand{
				ProductID:     b.ProductID,
				Quantity:      b.Quantity,
				UnitCost:      b.UnitCost,
				ExpiryDate:    b.ExpiryDate,
				ReferenceType: &ref,
				ReferenceID:   &source,
			}
			if b.BatchCode != "" {
				code := b.BatchCode
				cmd.BatchCode = &code
			}
			if _, err := receiver.StockIn(ctx, cmd); err != nil {
				return fmt.Errorf("line %d: %w", b.Line, err)
			}
			sum.Lines++
			sum.Quantity += b.Quantity
			sum.Value = sum.Value.Add(types.Extend(b.UnitCost, b.Quantity))
			products[b.ProductID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sum.Products = len(products)
	return sum, nil
}
