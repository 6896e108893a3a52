package dto

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
)

// StockInRequest receives a new batch.
type StockInRequest struct {
	ProductID         string      `json:"productId" binding:"required"`
	Quantity          int64       `json:"quantity"`
	UnitCost          types.Money `json:"unitCost"`
	BatchCode         *string     `json:"batchCode"`
	ExpiryDate        *time.Time  `json:"expiryDate"`
	ManufacturingDate *time.Time  `json:"manufacturingDate"`
	SupplierID        *string     `json:"supplierId"`
	ReceiptItemID     *string     `json:"receiptItemId"`
	ReferenceType     *string     `json:"referenceType"`
	ReferenceID       *string     `json:"referenceId"`
	Notes             *string     `json:"notes"`
}

// ToCommand converts the request. Quantity and cost rules are left to the
// engine, which also picks the reference type when none is given.
func (r StockInRequest) ToCommand() (inventory.StockInCommand, error) {
	productID, err := ParseID("productId", r.ProductID)
	if err != nil {
		return inventory.StockInCommand{}, err
	}
	supplierID, err := ParseOptionalID("supplierId", r.SupplierID)
	if err != nil {
		return inventory.StockInCommand{}, err
	}
	receiptItemID, err := ParseOptionalID("receiptItemId", r.ReceiptItemID)
	if err != nil {
		return inventory.StockInCommand{}, err
	}
	return inventory.StockInCommand{
		ProductID:         productID,
		Quantity:          r.Quantity,
		UnitCost:          r.UnitCost,
		BatchCode:         r.BatchCode,
		ExpiryDate:        r.ExpiryDate,
		ManufacturingDate: r.ManufacturingDate,
		SupplierID:        supplierID,
		ReceiptItemID:     receiptItemID,
		ReferenceType:     r.ReferenceType,
		ReferenceID:       r.ReferenceID,
		Notes:             r.Notes,
	}, nil
}

// StockOutRequest dispatches stock, oldest batches first.
type StockOutRequest struct {
	ProductID     string  `json:"productId" binding:"required"`
	Quantity      int64   `json:"quantity"`
	ReferenceType string  `json:"referenceType"`
	ReferenceID   *string `json:"referenceId"`
	Notes         *string `json:"notes"`
}

// ToCommand converts the request. An empty reference type means SALE.
func (r StockOutRequest) ToCommand() (inventory.StockOutCommand, error) {
	productID, err := ParseID("productId", r.ProductID)
	if err != nil {
		return inventory.StockOutCommand{}, err
	}
	refType := r.ReferenceType
	if refType == "" {
		refType = inventory.ReferenceSale
	}
	return inventory.StockOutCommand{
		ProductID:     productID,
		Quantity:      r.Quantity,
		ReferenceType: refType,
		ReferenceID:   r.ReferenceID,
		Notes:         r.Notes,
	}, nil
}

// RemoveBatchRequest takes a batch out of costing.
type RemoveBatchRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// WACResponse is the current weighted average cost of a product.
type WACResponse struct {
	ProductID   id.ID       `json:"productId"`
	AverageCost types.Money `json:"averageCost"`
}

// LedgerQuery filters ledger listings.
type LedgerQuery struct {
	ListQuery
	DateRange
	Type          string `form:"type" binding:"omitempty,oneof=IN OUT REVALUATION"`
	ReferenceType string `form:"referenceType"`
	ReferenceID   string `form:"referenceId"`
}

// ToFilter converts the query for one product.
func (q LedgerQuery) ToFilter(productID id.ID) (inventory.LedgerFilter, error) {
	if err := q.DateRange.Validate(); err != nil {
		return inventory.LedgerFilter{}, err
	}
	base, err := q.ListQuery.ToListFilter()
	if err != nil {
		return inventory.LedgerFilter{}, err
	}
	if q.OrderBy == "" {
		base.OrderBy = "created_at"
	}
	f := inventory.LedgerFilter{
		ListFilter: base,
		ProductID:  &productID,
		From:       q.From,
		To:         q.To,
	}
	if q.Type != "" {
		t := inventory.TransactionType(q.Type)
		f.Type = &t
	}
	if q.ReferenceType != "" {
		f.ReferenceType = &q.ReferenceType
	}
	if q.ReferenceID != "" {
		f.ReferenceID = &q.ReferenceID
	}
	return f, nil
}
