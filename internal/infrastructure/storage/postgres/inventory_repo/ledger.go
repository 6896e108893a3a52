package inventory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/postgres"
)

const transactionsTable = "inv_transactions"

var ledgerColumns = postgres.ExtractDBColumns[inventory.Transaction]()

// ledgerOrder is the canonical order: seq is assigned under the product lock,
// so it follows commit order even when instance clocks disagree.
const ledgerOrder = "seq"

// ledgerSortKey maps created_at ordering onto seq.
func ledgerSortKey(orderBy string) string {
	switch orderBy {
	case "created_at":
		return ledgerOrder
	case "-created_at":
		return "-" + ledgerOrder
	}
	return orderBy
}

var _ inventory.Ledger = (*LedgerRepo)(nil)

// LedgerRepo implements inventory.Ledger over inv_transactions. The table has
// no update path; a trigger rejects UPDATE and DELETE.
type LedgerRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{txm: txm, builder: postgres.Builder()}
}

// Append implements inventory.Ledger. The database assigns seq, which is
// read back into the entry.
func (r *LedgerRepo) Append(ctx context.Context, entry *inventory.Transaction) error {
	if err := entry.CheckSign(); err != nil {
		return err
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	sql, args, err := r.builder.Insert(transactionsTable).
		SetMap(postgres.StructToMap(entry)).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&entry.Seq); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ListByProduct implements inventory.Ledger.
func (r *LedgerRepo) ListByProduct(ctx context.Context, productID id.ID) ([]*inventory.Transaction, error) {
	q := r.builder.Select(ledgerColumns...).From(transactionsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy(ledgerOrder)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	entries := make([]*inventory.Transaction, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select ledger: %w", err)
	}
	return entries, nil
}

// Last implements inventory.Ledger.
func (r *LedgerRepo) Last(ctx context.Context, productID id.ID) (*inventory.Transaction, error) {
	q := r.builder.Select(ledgerColumns...).From(transactionsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy(ledgerOrder + " DESC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entry inventory.Transaction
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &entry, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("last ledger entry: %w", err)
	}
	return &entry, nil
}

// Query implements inventory.Ledger.
func (r *LedgerRepo) Query(ctx context.Context, f inventory.LedgerFilter) (domain.ListResult[*inventory.Transaction], error) {
	var result domain.ListResult[*inventory.Transaction]

	where, err := buildLedgerWhere(r.builder.Select().From(transactionsTable), f)
	if err != nil {
		return result, err
	}

	countSQL, countArgs, err := where.Columns("COUNT(*)").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count ledger: %w", err)
	}

	q := postgres.ApplyOrder(where.Columns(ledgerColumns...), ledgerColumns, ledgerSortKey(f.OrderBy), ledgerOrder)
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

	result.Items = make([]*inventory.Transaction, 0)
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("query ledger: %w", err)
	}
	result.Limit = f.Limit
	result.Offset = f.Offset
	return result, nil
}

// buildLedgerWhere applies the typed filter fields and then the advanced ones.
func buildLedgerWhere(q squirrel.SelectBuilder, f inventory.LedgerFilter) (squirrel.SelectBuilder, error) {
	if len(f.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": f.IDs})
	}
	if f.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *f.ProductID})
	}
	if f.Type != nil {
		q = q.Where(squirrel.Eq{"type": string(*f.Type)})
	}
	if f.ReferenceType != nil {
		q = q.Where(squirrel.Eq{"reference_type": *f.ReferenceType})
	}
	if f.ReferenceID != nil {
		q = q.Where(squirrel.Eq{"reference_id": *f.ReferenceID})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.To})
	}
	return postgres.ApplyFilters(q, ledgerColumns, f.AdvancedFilters)
}
