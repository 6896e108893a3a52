package memory

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/reports"
)

// ReportRepo reads report data from a Store.
type ReportRepo struct {
	store *Store
}

var _ reports.Repository = (*ReportRepo)(nil)

// NewReportRepo creates a report repository over store.
func NewReportRepo(store *Store) *ReportRepo {
	return &ReportRepo{store: store}
}

// LiveBatches implements reports.Repository.
func (r *ReportRepo) LiveBatches(ctx context.Context, productIDs []id.ID) ([]*inventory.Batch, error) {
	wanted := make(map[id.ID]bool, len(productIDs))
	for _, p := range productIDs {
		wanted[p] = true
	}
	out := make([]*inventory.Batch, 0)
	err := r.store.view(ctx, func(st *state) error {
		for _, bid := range st.order {
			b := st.batches[bid]
			if !b.IsLive() || (len(wanted) > 0 && !wanted[b.ProductID]) {
				continue
			}
			out = append(out, copyBatch(b))
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return id.Compare(out[i].ProductID, out[j].ProductID) < 0
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return id.Compare(out[i].ID, out[j].ID) < 0
	})
	return out, err
}

// ProductStock implements reports.Repository.
func (r *ReportRepo) ProductStock(ctx context.Context) ([]reports.ProductStock, error) {
	byProduct := make(map[id.ID]*reports.ProductStock)
	err := r.store.view(ctx, func(st *state) error {
		for _, bid := range st.order {
			b := st.batches[bid]
			p, ok := byProduct[b.ProductID]
			if !ok {
				p = &reports.ProductStock{ProductID: b.ProductID}
				byProduct[b.ProductID] = p
			}
			if b.IsLive() {
				p.Quantity += b.RemainingQuantity
				p.BatchCount++
			}
		}
		return nil
	})
	out := make([]reports.ProductStock, 0, len(byProduct))
	for _, p := range byProduct {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].ProductID, out[j].ProductID) < 0 })
	return out, err
}

// ExpiringBatches implements reports.Repository.
func (r *ReportRepo) ExpiringBatches(ctx context.Context, until time.Time) ([]*inventory.Batch, error) {
	out := make([]*inventory.Batch, 0)
	err := r.store.view(ctx, func(st *state) error {
		for _, bid := range st.order {
			b := st.batches[bid]
			if !b.IsLive() || b.ExpiryDate == nil || b.ExpiryDate.After(until) {
				continue
			}
			out = append(out, copyBatch(b))
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiryDate.Before(*out[j].ExpiryDate) })
	return out, err
}
