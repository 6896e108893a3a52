package memory

import (
	"context"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/receipt"
)

// Create implements receipt.Repository.
func (s *Store) Create(ctx context.Context, r *receipt.Receipt) error {
	return s.update(ctx, func(st *state) error {
		for _, existing := range st.receipts {
			if existing.Code == r.Code {
				return apperror.NewDuplicate("receipt", "code", r.Code)
			}
		}
		if _, ok := st.receipts[r.ID]; ok {
			return apperror.NewDuplicate("receipt", "id", r.ID.String())
		}
		st.receipts[r.ID] = copyReceipt(r)
		return nil
	})
}

// GetByID implements receipt.Repository.
func (s *Store) GetByID(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
	var out *receipt.Receipt
	err := s.view(ctx, func(st *state) error {
		r, ok := st.receipts[receiptID]
		if !ok {
			return apperror.NewNotFound("receipt", receiptID)
		}
		out = copyReceipt(r)
		return nil
	})
	return out, err
}

// GetByCode implements receipt.Repository.
func (s *Store) GetByCode(ctx context.Context, code string) (*receipt.Receipt, error) {
	var out *receipt.Receipt
	err := s.view(ctx, func(st *state) error {
		for _, r := range st.receipts {
			if r.Code == code {
				out = copyReceipt(r)
				return nil
			}
		}
		return apperror.NewNotFound("receipt", code)
	})
	return out, err
}

// GetForUpdate implements receipt.Repository.
func (s *Store) GetForUpdate(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
	if unitFrom(ctx) == nil {
		return nil, ErrNoUnitOfWork
	}
	return s.GetByID(ctx, receiptID)
}

// UpdateStatus implements receipt.Repository.
func (s *Store) UpdateStatus(ctx context.Context, r *receipt.Receipt) error {
	return s.update(ctx, func(st *state) error {
		stored, ok := st.receipts[r.ID]
		if !ok {
			return apperror.NewNotFound("receipt", r.ID)
		}
		if stored.Version != r.Version-1 {
			return apperror.NewConcurrentModification("receipt", r.ID)
		}
		items := stored.Items
		updated := copyReceipt(r)
		updated.Items = items
		st.receipts[r.ID] = updated
		return nil
	})
}

// List implements receipt.Repository. Newest first.
func (s *Store) List(ctx context.Context, f receipt.ListFilter) (domain.ListResult[*receipt.Receipt], error) {
	matched := make([]*receipt.Receipt, 0)
	err := s.view(ctx, func(st *state) error {
		for _, r := range st.receipts {
			if f.Status != nil && r.Status != *f.Status {
				continue
			}
			if f.SupplierID != nil && r.SupplierID != *f.SupplierID {
				continue
			}
			if f.From != nil && r.CreatedAt.Before(*f.From) {
				continue
			}
			if f.To != nil && r.CreatedAt.After(*f.To) {
				continue
			}
			c := copyReceipt(r)
			c.Items = nil
			matched = append(matched, c)
		}
		return nil
	})
	if err != nil {
		return domain.ListResult[*receipt.Receipt]{}, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return id.Compare(matched[i].ID, matched[j].ID) > 0
	})
	return paginate(matched, f.ListFilter), nil
}
