package dto

import "stockledger/internal/core/id"

// ValuationQuery restricts a valuation report to some products.
type ValuationQuery struct {
	ProductIDs []string `form:"productId"`
}

// IDs parses the product ids.
func (q ValuationQuery) IDs() ([]id.ID, error) {
	return ParseIDList("productId", q.ProductIDs)
}

// LowStockQuery overrides the alert threshold.
type LowStockQuery struct {
	MinimumQuantity *int64 `form:"minimumQuantity"`
}

// ExpiringQuery overrides the expiry window.
type ExpiringQuery struct {
	DaysBeforeExpiry *int `form:"daysBeforeExpiry"`
}
