// Package inventory_repo provides PostgreSQL implementations of the batch
// store and the transaction ledger.
package inventory_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/postgres"
)

const batchesTable = "inv_batches"

// ErrNoTransaction is returned by LockProduct outside a unit of work.
var ErrNoTransaction = errors.New("product lock requires a transaction")

var batchColumns = postgres.ExtractDBColumns[inventory.Batch]()

var _ inventory.BatchStore = (*BatchRepo)(nil)

// BatchRepo implements inventory.BatchStore.
type BatchRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewBatchRepo creates a new batch repository.
func NewBatchRepo(txm *postgres.TxManager) *BatchRepo {
	return &BatchRepo{txm: txm, builder: postgres.Builder()}
}

// LockProduct serializes movements of one product. The advisory lock covers
// products that have no batch rows yet; the row locks pin the live lots.
// Both are released at commit or rollback.
func (r *BatchRepo) LockProduct(ctx context.Context, productID id.ID) error {
	tx := r.txm.GetTx(ctx)
	if tx == nil {
		return ErrNoTransaction
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, productID.String()); err != nil {
		return fmt.Errorf("advisory lock product %s: %w", productID, err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id FROM inv_batches
		WHERE product_id = $1 AND removed_at IS NULL AND remaining_quantity > 0
		ORDER BY created_at, id
		FOR UPDATE
	`, productID)
	if err != nil {
		return fmt.Errorf("lock batches of %s: %w", productID, err)
	}
	rows.Close()
	return rows.Err()
}

func (r *BatchRepo) selectBatches() squirrel.SelectBuilder {
	return r.builder.Select(batchColumns...).From(batchesTable)
}

func (r *BatchRepo) list(ctx context.Context, q squirrel.SelectBuilder) ([]*inventory.Batch, error) {
	sql, args, err := q.OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	batches := make([]*inventory.Batch, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}
	return batches, nil
}

// ListBatches implements inventory.BatchStore.
func (r *BatchRepo) ListBatches(ctx context.Context, productID id.ID) ([]*inventory.Batch, error) {
	return r.list(ctx, r.selectBatches().Where(squirrel.Eq{"product_id": productID}))
}

// GetBatchesOrderedByAge implements inventory.BatchStore.
func (r *BatchRepo) GetBatchesOrderedByAge(ctx context.Context, productID id.ID) ([]*inventory.Batch, error) {
	return r.list(ctx, liveBatches(r.selectBatches()).Where(squirrel.Eq{"product_id": productID}))
}

func liveBatches(q squirrel.SelectBuilder) squirrel.SelectBuilder {
	return q.Where(squirrel.Gt{"remaining_quantity": 0}).Where(squirrel.Eq{"removed_at": nil})
}

// GetBatch implements inventory.BatchStore.
func (r *BatchRepo) GetBatch(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	sql, args, err := r.selectBatches().Where(squirrel.Eq{"id": batchID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b inventory.Batch
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// CreateBatch implements inventory.BatchStore.
func (r *BatchRepo) CreateBatch(ctx context.Context, batch *inventory.Batch) error {
	if batch.OriginalQuantity <= 0 {
		return apperror.NewInvalidQuantity(batch.OriginalQuantity)
	}
	if id.IsNil(batch.ID) {
		batch.ID = id.New()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.RemainingQuantity = batch.OriginalQuantity

	sql, args, err := r.builder.Insert(batchesTable).SetMap(postgres.StructToMap(batch)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// DecrementRemaining implements inventory.BatchStore. The guard in the WHERE
// clause keeps remaining_quantity non-negative even without a prior lock.
func (r *BatchRepo) DecrementRemaining(ctx context.Context, batchID id.ID, qty int64) error {
	if qty <= 0 {
		return apperror.NewInvalidQuantity(qty)
	}

	var remaining int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		UPDATE inv_batches
		SET remaining_quantity = remaining_quantity - $1
		WHERE id = $2 AND removed_at IS NULL AND remaining_quantity >= $1
		RETURNING remaining_quantity
	`, qty, batchID).Scan(&remaining)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("decrement batch %s: %w", batchID, err)
	}

	b, getErr := r.GetBatch(ctx, batchID)
	if getErr != nil {
		return getErr
	}
	available := b.RemainingQuantity
	if b.RemovedAt != nil {
		available = 0
	}
	return apperror.NewInsufficientStock(b.ProductID.String(), qty, available).WithDetail("batch_id", batchID)
}

// SoftRemove implements inventory.BatchStore.
func (r *BatchRepo) SoftRemove(ctx context.Context, batchID id.ID, reason string, at time.Time) error {
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		UPDATE inv_batches
		SET removed_at = $1, removed_reason = $2
		WHERE id = $3 AND removed_at IS NULL
	`, at, reason, batchID)
	if err != nil {
		return fmt.Errorf("remove batch %s: %w", batchID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetBatch(ctx, batchID); err != nil {
		return err
	}
	return apperror.NewConflict("batch already removed").WithDetail("batch_id", batchID)
}

// ProductsWithLiveStock implements inventory.BatchStore.
func (r *BatchRepo) ProductsWithLiveStock(ctx context.Context) ([]id.ID, error) {
	sql, args, err := liveBatches(r.builder.Select("DISTINCT product_id").From(batchesTable)).
		OrderBy("product_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return ids, nil
}
