// Package pricing maintains the downstream product price record that stock
// receipts feed: the moving average cost and the latest purchase price.
package pricing

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

var _ inventory.PriceUpdater = (*PostgresUpdater)(nil)

// PostgresUpdater upserts cat_product_prices.
type PostgresUpdater struct {
	txm *postgres.TxManager
	now func() time.Time
}

// NewPostgresUpdater creates an updater writing through txm.
func NewPostgresUpdater(txm *postgres.TxManager) *PostgresUpdater {
	return &PostgresUpdater{txm: txm, now: time.Now}
}

// UpdateAverageCostAndPrice implements inventory.PriceUpdater.
func (u *PostgresUpdater) UpdateAverageCostAndPrice(ctx context.Context, productID id.ID, avg types.Money) error {
	_, err := u.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO cat_product_prices (product_id, average_cost, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE SET
			average_cost = EXCLUDED.average_cost,
			updated_at = EXCLUDED.updated_at
	`, productID, avg, u.now().UTC())
	if err != nil {
		return fmt.Errorf("update average cost of %s: %w", productID, err)
	}
	return nil
}

// SetLatestPurchasePrice implements inventory.PriceUpdater.
func (u *PostgresUpdater) SetLatestPurchasePrice(ctx context.Context, productID id.ID, price types.Money) error {
	_, err := u.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO cat_product_prices (product_id, latest_purchase_price, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE SET
			latest_purchase_price = EXCLUDED.latest_purchase_price,
			updated_at = EXCLUDED.updated_at
	`, productID, price, u.now().UTC())
	if err != nil {
		return fmt.Errorf("set latest purchase price of %s: %w", productID, err)
	}
	return nil
}

// Logging wraps an updater and logs every call outcome.
type Logging struct {
	next inventory.PriceUpdater
	log  *logger.Logger
}

var _ inventory.PriceUpdater = (*Logging)(nil)

// WithLogging decorates next.
func WithLogging(next inventory.PriceUpdater, log *logger.Logger) *Logging {
	return &Logging{next: next, log: log.WithComponent("pricing")}
}

// UpdateAverageCostAndPrice implements inventory.PriceUpdater.
func (l *Logging) UpdateAverageCostAndPrice(ctx context.Context, productID id.ID, avg types.Money) error {
	err := l.next.UpdateAverageCostAndPrice(ctx, productID, avg)
	l.report(ctx, "average_cost", productID, avg, err)
	return err
}

// SetLatestPurchasePrice implements inventory.PriceUpdater.
func (l *Logging) SetLatestPurchasePrice(ctx context.Context, productID id.ID, price types.Money) error {
	err := l.next.SetLatestPurchasePrice(ctx, productID, price)
	l.report(ctx, "latest_purchase_price", productID, price, err)
	return err
}

func (l *Logging) report(ctx context.Context, field string, productID id.ID, value types.Money, err error) {
	log := l.log.WithContext(ctx)
	if err != nil {
		log.Errorw("product price update failed", "field", field, "product_id", productID, "value", value.String(), "error", err)
		return
	}
	log.Debugw("product price updated", "field", field, "product_id", productID, "value", value.String())
}
