// Package report_repo provides the PostgreSQL read model for valuation and
// alert reports.
package report_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/storage/postgres"
)

const batchesTable = "inv_batches"

var batchColumns = postgres.ExtractDBColumns[inventory.Batch]()

var _ reports.Repository = (*ReportRepo)(nil)

// ReportRepo implements reports.Repository. Queries run on the pool and take
// no locks.
type ReportRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewReportRepo creates a new report repository.
func NewReportRepo(txm *postgres.TxManager) *ReportRepo {
	return &ReportRepo{txm: txm, builder: postgres.Builder()}
}

func (r *ReportRepo) live() squirrel.SelectBuilder {
	return r.builder.Select(batchColumns...).From(batchesTable).
		Where(squirrel.Gt{"remaining_quantity": 0}).
		Where(squirrel.Eq{"removed_at": nil})
}

func (r *ReportRepo) selectBatches(ctx context.Context, q squirrel.SelectBuilder) ([]*inventory.Batch, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	batches := make([]*inventory.Batch, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}
	return batches, nil
}

// LiveBatches implements reports.Repository.
func (r *ReportRepo) LiveBatches(ctx context.Context, productIDs []id.ID) ([]*inventory.Batch, error) {
	q := r.live()
	if len(productIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": productIDs})
	}
	return r.selectBatches(ctx, q.OrderBy("product_id", "created_at", "id"))
}

// ProductStock implements reports.Repository.
func (r *ReportRepo) ProductStock(ctx context.Context) ([]reports.ProductStock, error) {
	sql, args, err := productStockQuery(r.builder).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	stock := make([]reports.ProductStock, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &stock, sql, args...); err != nil {
		return nil, fmt.Errorf("select product stock: %w", err)
	}
	return stock, nil
}

func productStockQuery(b squirrel.StatementBuilderType) squirrel.SelectBuilder {
	return b.Select(
		"product_id",
		"COALESCE(SUM(remaining_quantity) FILTER (WHERE removed_at IS NULL), 0)::bigint AS quantity",
		"COUNT(*) FILTER (WHERE removed_at IS NULL AND remaining_quantity > 0) AS batch_count",
	).From(batchesTable).
		GroupBy("product_id").
		OrderBy("product_id")
}

// ExpiringBatches implements reports.Repository.
func (r *ReportRepo) ExpiringBatches(ctx context.Context, until time.Time) ([]*inventory.Batch, error) {
	q := r.live().
		Where(squirrel.NotEq{"expiry_date": nil}).
		Where(squirrel.LtOrEq{"expiry_date": until}).
		OrderBy("expiry_date", "created_at", "id")
	return r.selectBatches(ctx, q)
}
