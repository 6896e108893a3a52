package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/receipt"
)

// ReceiptItemRequest is one line of a new receipt.
type ReceiptItemRequest struct {
	ProductID         string      `json:"productId" binding:"required"`
	Quantity          int64       `json:"quantity"`
	UnitCost          types.Money `json:"unitCost"`
	BatchCode         *string     `json:"batchCode"`
	ExpiryDate        *time.Time  `json:"expiryDate"`
	ManufacturingDate *time.Time  `json:"manufacturingDate"`
}

// CreateReceiptRequest creates a draft receipt.
type CreateReceiptRequest struct {
	Code       *string              `json:"code"`
	SupplierID string               `json:"supplierId" binding:"required"`
	Notes      *string              `json:"notes"`
	Items      []ReceiptItemRequest `json:"items" binding:"required,dive"`
}

// ToCommand converts the request.
func (r CreateReceiptRequest) ToCommand() (receipt.CreateReceiptCommand, error) {
	supplierID, err := ParseID("supplierId", r.SupplierID)
	if err != nil {
		return receipt.CreateReceiptCommand{}, err
	}
	cmd := receipt.CreateReceiptCommand{
		Code:       r.Code,
		SupplierID: supplierID,
		Notes:      r.Notes,
		Items:      make([]receipt.CreateItemCommand, 0, len(r.Items)),
	}
	for i, it := range r.Items {
		productID, err := id.Parse(it.ProductID)
		if err != nil {
			return receipt.CreateReceiptCommand{}, apperror.NewValidation("invalid productId").
				WithDetail("field", "productId").
				WithDetail("lineNo", i+1)
		}
		cmd.Items = append(cmd.Items, receipt.CreateItemCommand{
			ProductID:         productID,
			Quantity:          it.Quantity,
			UnitCost:          it.UnitCost,
			BatchCode:         it.BatchCode,
			ExpiryDate:        it.ExpiryDate,
			ManufacturingDate: it.ManufacturingDate,
		})
	}
	return cmd, nil
}

// CancelReceiptRequest carries the mandatory reason.
type CancelReceiptRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// ReceiptListQuery filters receipt listings.
type ReceiptListQuery struct {
	ListQuery
	DateRange
	Status     string `form:"status"`
	SupplierID string `form:"supplierId"`
}

// ToFilter converts the query.
func (q ReceiptListQuery) ToFilter() (receipt.ListFilter, error) {
	if err := q.DateRange.Validate(); err != nil {
		return receipt.ListFilter{}, err
	}
	base, err := q.ListQuery.ToListFilter()
	if err != nil {
		return receipt.ListFilter{}, err
	}
	f := receipt.ListFilter{ListFilter: base, From: q.From, To: q.To}
	if q.Status != "" {
		s := receipt.Status(q.Status)
		if !s.Valid() {
			return receipt.ListFilter{}, apperror.NewValidation("unknown status").WithDetail("field", "status")
		}
		f.Status = &s
	}
	if q.SupplierID != "" {
		sid, err := ParseID("supplierId", q.SupplierID)
		if err != nil {
			return receipt.ListFilter{}, err
		}
		f.SupplierID = &sid
	}
	return f, nil
}
