package memory

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/internal/domain/inventory"
)

// LockProduct implements inventory.BatchStore. Units of work are already
// exclusive, so the lock only asserts that one is active.
func (s *Store) LockProduct(ctx context.Context, _ id.ID) error {
	if unitFrom(ctx) == nil {
		return ErrNoUnitOfWork
	}
	return nil
}

// ListBatches implements inventory.BatchStore.
func (s *Store) ListBatches(ctx context.Context, productID id.ID) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	err := s.view(ctx, func(st *state) error {
		out = st.productBatches(productID, false)
		return nil
	})
	return out, err
}

// GetBatchesOrderedByAge implements inventory.BatchStore.
func (s *Store) GetBatchesOrderedByAge(ctx context.Context, productID id.ID) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	err := s.view(ctx, func(st *state) error {
		out = st.productBatches(productID, true)
		return nil
	})
	return out, err
}

// productBatches returns copies ordered by created_at, ties by id.
func (st *state) productBatches(productID id.ID, liveOnly bool) []*inventory.Batch {
	out := make([]*inventory.Batch, 0)
	for _, bid := range st.order {
		b := st.batches[bid]
		if b.ProductID != productID {
			continue
		}
		if liveOnly && !b.IsLive() {
			continue
		}
		out = append(out, copyBatch(b))
	}
	sortByAge(out)
	return out
}

func sortByAge(batches []*inventory.Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if !batches[i].CreatedAt.Equal(batches[j].CreatedAt) {
			return batches[i].CreatedAt.Before(batches[j].CreatedAt)
		}
		return id.Compare(batches[i].ID, batches[j].ID) < 0
	})
}

// GetBatch implements inventory.BatchStore.
func (s *Store) GetBatch(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	var out *inventory.Batch
	err := s.view(ctx, func(st *state) error {
		b, ok := st.batches[batchID]
		if !ok {
			return apperror.NewNotFound("batch", batchID)
		}
		out = copyBatch(b)
		return nil
	})
	return out, err
}

// CreateBatch implements inventory.BatchStore.
func (s *Store) CreateBatch(ctx context.Context, batch *inventory.Batch) error {
	if batch.OriginalQuantity <= 0 {
		return apperror.NewInvalidQuantity(batch.OriginalQuantity)
	}
	return s.update(ctx, func(st *state) error {
		if id.IsNil(batch.ID) {
			batch.ID = id.New()
		}
		if _, exists := st.batches[batch.ID]; exists {
			return apperror.NewDuplicate("batch", "id", batch.ID.String())
		}
		if batch.CreatedAt.IsZero() {
			batch.CreatedAt = s.now().UTC()
		}
		batch.RemainingQuantity = batch.OriginalQuantity
		st.batches[batch.ID] = copyBatch(batch)
		st.order = append(st.order, batch.ID)
		return nil
	})
}

// DecrementRemaining implements inventory.BatchStore.
func (s *Store) DecrementRemaining(ctx context.Context, batchID id.ID, qty int64) error {
	if qty <= 0 {
		return apperror.NewInvalidQuantity(qty)
	}
	return s.update(ctx, func(st *state) error {
		b, ok := st.batches[batchID]
		if !ok {
			return apperror.NewNotFound("batch", batchID)
		}
		if b.RemovedAt != nil || b.RemainingQuantity < qty {
			return apperror.NewInsufficientStock(b.ProductID.String(), qty, b.RemainingQuantity).
				WithDetail("batch_id", batchID)
		}
		b.RemainingQuantity -= qty
		return nil
	})
}

// SoftRemove implements inventory.BatchStore.
func (s *Store) SoftRemove(ctx context.Context, batchID id.ID, reason string, at time.Time) error {
	return s.update(ctx, func(st *state) error {
		b, ok := st.batches[batchID]
		if !ok {
			return apperror.NewNotFound("batch", batchID)
		}
		if b.RemovedAt != nil {
			return apperror.NewConflict("batch already removed").WithDetail("batch_id", batchID)
		}
		b.RemovedAt = &at
		b.RemovedReason = &reason
		return nil
	})
}

// ProductsWithLiveStock implements inventory.BatchStore.
func (s *Store) ProductsWithLiveStock(ctx context.Context) ([]id.ID, error) {
	var out []id.ID
	err := s.view(ctx, func(st *state) error {
		seen := make(map[id.ID]bool)
		for _, bid := range st.order {
			b := st.batches[bid]
			if b.IsLive() && !seen[b.ProductID] {
				seen[b.ProductID] = true
				out = append(out, b.ProductID)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i], out[j]) < 0 })
	return out, err
}

// --- Ledger ---

// Append implements inventory.Ledger.
func (s *Store) Append(ctx context.Context, entry *inventory.Transaction) error {
	if err := entry.CheckSign(); err != nil {
		return err
	}
	return s.update(ctx, func(st *state) error {
		if id.IsNil(entry.ID) {
			entry.ID = id.New()
		}
		st.seq++
		entry.Seq = st.seq
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = s.now().UTC()
		}
		c := *entry
		st.ledger = append(st.ledger, &c)
		return nil
	})
}

// ListByProduct implements inventory.Ledger.
func (s *Store) ListByProduct(ctx context.Context, productID id.ID) ([]*inventory.Transaction, error) {
	out := make([]*inventory.Transaction, 0)
	err := s.view(ctx, func(st *state) error {
		for _, e := range st.ledger {
			if e.ProductID == productID {
				c := *e
				out = append(out, &c)
			}
		}
		return nil
	})
	sortLedger(out)
	return out, err
}

func sortLedger(entries []*inventory.Transaction) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
}

// Last implements inventory.Ledger.
func (s *Store) Last(ctx context.Context, productID id.ID) (*inventory.Transaction, error) {
	entries, err := s.ListByProduct(ctx, productID)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[len(entries)-1], nil
}

// Query implements inventory.Ledger. Advanced filters are not evaluated in
// memory.
func (s *Store) Query(ctx context.Context, f inventory.LedgerFilter) (domain.ListResult[*inventory.Transaction], error) {
	if len(f.AdvancedFilters) > 0 {
		return domain.ListResult[*inventory.Transaction]{}, apperror.NewValidation("advanced filters are not supported by this store")
	}

	ids := make(map[id.ID]bool, len(f.IDs))
	for _, v := range f.IDs {
		ids[v] = true
	}

	matched := make([]*inventory.Transaction, 0)
	err := s.view(ctx, func(st *state) error {
		for _, e := range st.ledger {
			if len(ids) > 0 && !ids[e.ID] {
				continue
			}
			if f.ProductID != nil && e.ProductID != *f.ProductID {
				continue
			}
			if f.Type != nil && e.Type != *f.Type {
				continue
			}
			if f.ReferenceType != nil && (e.ReferenceType == nil || *e.ReferenceType != *f.ReferenceType) {
				continue
			}
			if f.ReferenceID != nil && (e.ReferenceID == nil || *e.ReferenceID != *f.ReferenceID) {
				continue
			}
			if f.From != nil && e.CreatedAt.Before(*f.From) {
				continue
			}
			if f.To != nil && e.CreatedAt.After(*f.To) {
				continue
			}
			c := *e
			matched = append(matched, &c)
		}
		return nil
	})
	if err != nil {
		return domain.ListResult[*inventory.Transaction]{}, err
	}

	sortLedger(matched)
	if f.OrderBy == "-created_at" || f.OrderBy == "-seq" {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	return paginate(matched, f.ListFilter), nil
}

func paginate[T any](items []T, f domain.ListFilter) domain.ListResult[T] {
	total := len(items)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return domain.ListResult[T]{
		Items:      items[start:end],
		TotalCount: int64(total),
		Limit:      f.Limit,
		Offset:     f.Offset,
	}
}

// --- Product price updater ---

// UpdateAverageCostAndPrice implements inventory.PriceUpdater.
func (s *Store) UpdateAverageCostAndPrice(ctx context.Context, productID id.ID, avg types.Money) error {
	return s.update(ctx, func(st *state) error {
		p := st.prices[productID]
		p.AverageCost = avg.String()
		p.UpdatedAt = s.now().UTC()
		st.prices[productID] = p
		return nil
	})
}

// SetLatestPurchasePrice implements inventory.PriceUpdater.
func (s *Store) SetLatestPurchasePrice(ctx context.Context, productID id.ID, price types.Money) error {
	return s.update(ctx, func(st *state) error {
		p := st.prices[productID]
		p.LatestPurchasePrice = price.String()
		p.UpdatedAt = s.now().UTC()
		st.prices[productID] = p
		return nil
	})
}
