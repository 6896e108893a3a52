// Package reports provides read-only aggregations over live batches:
// valuation, low-stock and expiry alerts.
package reports

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Defaults applied when the caller omits a parameter.
const (
	DefaultLowStockThreshold int64 = 10
	DefaultExpiryWindowDays        = 30
)

// --- Valuation ---

// ValuationItem is the live position of one product.
type ValuationItem struct {
	ProductID   id.ID       `json:"productId"`
	Quantity    int64       `json:"quantity"`
	Value       types.Money `json:"value"`
	AverageCost types.Money `json:"averageCost"`
	BatchCount  int         `json:"batchCount"`
}

// ValuationReport groups live batches by product.
type ValuationReport struct {
	GeneratedAt   time.Time       `json:"generatedAt"`
	Items         []ValuationItem `json:"items"`
	ProductCount  int             `json:"productCount"`
	TotalQuantity int64           `json:"totalQuantity"`
	TotalValue    types.Money     `json:"totalValue"`
	AverageCost   types.Money     `json:"averageCost"`
}

// --- Low stock ---

// StockTier classifies a low-stock product.
type StockTier string

const (
	TierOutOfStock StockTier = "OUT_OF_STOCK"
	TierLowStock   StockTier = "LOW_STOCK"
)

// ProductStock is the summed live quantity of a product that has had at
// least one batch.
type ProductStock struct {
	ProductID  id.ID `db:"product_id" json:"productId"`
	Quantity   int64 `db:"quantity" json:"quantity"`
	BatchCount int   `db:"batch_count" json:"batchCount"`
}

// LowStockItem is one flagged product.
type LowStockItem struct {
	ProductID  id.ID     `json:"productId"`
	Quantity   int64     `json:"quantity"`
	BatchCount int       `json:"batchCount"`
	Tier       StockTier `json:"tier"`
}

// LowStockAlert lists products at or below the threshold.
type LowStockAlert struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Threshold   int64          `json:"threshold"`
	Items       []LowStockItem `json:"items"`
	OutOfStock  int            `json:"outOfStock"`
	LowStock    int            `json:"lowStock"`
}

// --- Expiry ---

// ExpiryTier classifies an expiring batch.
type ExpiryTier string

const (
	TierExpired  ExpiryTier = "EXPIRED"
	TierCritical ExpiryTier = "CRITICAL"
	TierHigh     ExpiryTier = "HIGH"
	TierWarning  ExpiryTier = "WARNING"
)

// ClassifyExpiry maps days until expiry to a tier.
// Anything beyond 15 days inside the requested window is a warning.
func ClassifyExpiry(days int) ExpiryTier {
	switch {
	case days < 0:
		return TierExpired
	case days <= 7:
		return TierCritical
	case days <= 15:
		return TierHigh
	default:
		return TierWarning
	}
}

// ExpiringBatch is one flagged batch.
type ExpiringBatch struct {
	BatchID           id.ID       `json:"batchId"`
	ProductID         id.ID       `json:"productId"`
	BatchCode         *string     `json:"batchCode,omitempty"`
	RemainingQuantity int64       `json:"remainingQuantity"`
	UnitCost          types.Money `json:"unitCost"`
	Value             types.Money `json:"value"`
	ExpiryDate        time.Time   `json:"expiryDate"`
	DaysUntilExpiry   int         `json:"daysUntilExpiry"`
	Tier              ExpiryTier  `json:"tier"`
}

// ExpiryAlert lists live batches expiring within the window, soonest first.
type ExpiryAlert struct {
	GeneratedAt      time.Time          `json:"generatedAt"`
	DaysBeforeExpiry int                `json:"daysBeforeExpiry"`
	Items            []ExpiringBatch    `json:"items"`
	ByTier           map[ExpiryTier]int `json:"byTier"`
	ValueAtRisk      types.Money        `json:"valueAtRisk"`
}
