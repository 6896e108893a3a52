// Package receipt_repo provides the PostgreSQL receipt repository.
package receipt_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/receipt"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	receiptsTable = "inv_receipts"
	itemsTable    = "inv_receipt_items"
)

var (
	receiptColumns = postgres.ExtractDBColumns[receipt.Receipt]()
	itemColumns    = postgres.ExtractDBColumns[receipt.Item]()
)

// statusColumns are the header fields a transition may change.
var statusColumns = []string{
	"status", "updated_at",
	"approved_by", "approved_at",
	"completed_by", "completed_at",
	"cancelled_by", "cancelled_at", "cancelled_reason",
}

var _ receipt.Repository = (*Repo)(nil)

// Repo implements receipt.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewRepo creates a new receipt repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm, builder: postgres.Builder()}
}

// Create implements receipt.Repository. Items go through COPY when a
// transaction is active.
func (r *Repo) Create(ctx context.Context, rc *receipt.Receipt) error {
	header := postgres.StructToMap(rc)
	sql, args, err := r.builder.Insert(receiptsTable).SetMap(header).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if apperror.Is(postgres.TranslateError(err), apperror.CodeDuplicate) {
			return apperror.NewDuplicate("receipt", "code", rc.Code).WithCause(err)
		}
		return fmt.Errorf("insert receipt: %w", err)
	}

	if len(rc.Items) == 0 {
		return nil
	}

	if r.txm.GetTx(ctx) != nil {
		inserter := postgres.NewBatchInserter(r.txm)
		if _, err := postgres.CopyFromStructs(ctx, inserter, itemsTable, itemColumns, rc.Items); err != nil {
			return fmt.Errorf("copy receipt items: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(itemsTable).Columns(itemColumns...)
	for _, item := range rc.Items {
		m := postgres.StructToMap(item)
		values := make([]any, len(itemColumns))
		for i, col := range itemColumns {
			values[i] = m[col]
		}
		q = q.Values(values...)
	}
	sql, args, err = q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert items: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert receipt items: %w", err)
	}
	return nil
}

// GetByID implements receipt.Repository.
func (r *Repo) GetByID(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
	return r.get(ctx, squirrel.Eq{"id": receiptID}, receiptID, "")
}

// GetByCode implements receipt.Repository.
func (r *Repo) GetByCode(ctx context.Context, code string) (*receipt.Receipt, error) {
	return r.get(ctx, squirrel.Eq{"code": code}, code, "")
}

// GetForUpdate implements receipt.Repository.
func (r *Repo) GetForUpdate(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, fmt.Errorf("GetForUpdate requires transaction context")
	}
	return r.get(ctx, squirrel.Eq{"id": receiptID}, receiptID, "FOR UPDATE")
}

func (r *Repo) get(ctx context.Context, where squirrel.Eq, key any, suffix string) (*receipt.Receipt, error) {
	q := r.builder.Select(receiptColumns...).From(receiptsTable).Where(where)
	if suffix != "" {
		q = q.Suffix(suffix)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var rc receipt.Receipt
	if err := pgxscan.Get(ctx, querier, &rc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("receipt", key)
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	items, err := r.items(ctx, querier, rc.ID)
	if err != nil {
		return nil, err
	}
	rc.Items = items
	return &rc, nil
}

func (r *Repo) items(ctx context.Context, querier postgres.Querier, receiptID id.ID) ([]receipt.Item, error) {
	sql, args, err := r.builder.Select(itemColumns...).From(itemsTable).
		Where(squirrel.Eq{"receipt_id": receiptID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}

	items := make([]receipt.Item, 0)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select receipt items: %w", err)
	}
	return items, nil
}

// UpdateStatus implements receipt.Repository with optimistic locking on version.
func (r *Repo) UpdateStatus(ctx context.Context, rc *receipt.Receipt) error {
	data := postgres.StructToMap(rc)
	set := make(map[string]any, len(statusColumns))
	for _, col := range statusColumns {
		set[col] = data[col]
	}

	sql, args, err := r.builder.Update(receiptsTable).
		SetMap(set).
		Set("version", rc.Version).
		Where(squirrel.Eq{"id": rc.ID}).
		Where(squirrel.Eq{"version": rc.Version - 1}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update receipt status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, rc.ID); err != nil {
			return err
		}
		return apperror.NewConcurrentModification("receipt", rc.ID)
	}
	return nil
}

// List implements receipt.Repository. Newest first unless OrderBy says otherwise.
func (r *Repo) List(ctx context.Context, f receipt.ListFilter) (domain.ListResult[*receipt.Receipt], error) {
	var result domain.ListResult[*receipt.Receipt]

	where, err := buildListWhere(r.builder.Select().From(receiptsTable), f)
	if err != nil {
		return result, err
	}

	countSQL, countArgs, err := where.Columns("COUNT(*)").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count receipts: %w", err)
	}

	q := postgres.ApplyOrder(where.Columns(receiptColumns...), receiptColumns, f.OrderBy, "-created_at")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	result.Items = make([]*receipt.Receipt, 0)
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list receipts: %w", err)
	}
	result.Limit = f.Limit
	result.Offset = f.Offset
	return result, nil
}

func buildListWhere(q squirrel.SelectBuilder, f receipt.ListFilter) (squirrel.SelectBuilder, error) {
	if len(f.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": f.IDs})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*f.Status)})
	}
	if f.SupplierID != nil {
		q = q.Where(squirrel.Eq{"supplier_id": *f.SupplierID})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.To})
	}
	return postgres.ApplyFilters(q, receiptColumns, f.AdvancedFilters)
}
