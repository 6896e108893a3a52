// Package receipt provides the purchase receipt document and its workflow.
// A receipt owns its own state; everything that touches stock is delegated to
// the costing engine on completion.
package receipt

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Status is the receipt lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed moves out of each state.
var transitions = map[Status][]Status{
	StatusDraft:    {StatusApproved, StatusCancelled},
	StatusApproved: {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether the state machine allows s -> to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Receipt is a purchase document (header).
type Receipt struct {
	ID          id.ID       `db:"id" json:"id"`
	Code        string      `db:"code" json:"code"`
	SupplierID  id.ID       `db:"supplier_id" json:"supplierId"`
	Status      Status      `db:"status" json:"status"`
	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`
	Notes       *string     `db:"notes" json:"notes,omitempty"`

	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	ApprovedBy      *string    `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	CompletedBy     *string    `db:"completed_by" json:"completedBy,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CancelledBy     *string    `db:"cancelled_by" json:"cancelledBy,omitempty"`
	CancelledAt     *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelledReason *string    `db:"cancelled_reason" json:"cancelledReason,omitempty"`

	// Version increases with every status change (optimistic locking).
	Version int `db:"version" json:"version"`

	Items []Item `db:"-" json:"items"`
}

// Item is one line of a receipt.
type Item struct {
	ID                id.ID       `db:"id" json:"id"`
	ReceiptID         id.ID       `db:"receipt_id" json:"receiptId"`
	LineNo            int         `db:"line_no" json:"lineNo"`
	ProductID         id.ID       `db:"product_id" json:"productId"`
	Quantity          int64       `db:"quantity" json:"quantity"`
	UnitCost          types.Money `db:"unit_cost" json:"unitCost"`
	TotalPrice        types.Money `db:"total_price" json:"totalPrice"`
	BatchCode         *string     `db:"batch_code" json:"batchCode,omitempty"`
	ExpiryDate        *time.Time  `db:"expiry_date" json:"expiryDate,omitempty"`
	ManufacturingDate *time.Time  `db:"manufacturing_date" json:"manufacturingDate,omitempty"`
}

// AddItem appends a line and recalculates the total.
func (r *Receipt) AddItem(item Item) {
	item.ID = id.New()
	item.ReceiptID = r.ID
	item.LineNo = len(r.Items) + 1
	item.UnitCost = types.RoundCost(item.UnitCost)
	item.TotalPrice = types.Extend(item.UnitCost, item.Quantity)
	r.Items = append(r.Items, item)
	r.recalculateTotals()
}

func (r *Receipt) recalculateTotals() {
	total := types.Zero()
	for _, it := range r.Items {
		total = total.Add(it.TotalPrice)
	}
	r.TotalAmount = total
}

func (r *Receipt) transition(to Status) error {
	if !r.Status.CanTransitionTo(to) {
		return apperror.NewInvalidStateTransition("receipt", string(r.Status), string(to)).
			WithDetail("receipt_id", r.ID)
	}
	r.Status = to
	r.Version++
	return nil
}

// Approve moves a draft to approved.
func (r *Receipt) Approve(actor string, at time.Time) error {
	if err := r.transition(StatusApproved); err != nil {
		return err
	}
	r.ApprovedBy = &actor
	r.ApprovedAt = &at
	r.UpdatedAt = at
	return nil
}

// Complete moves an approved receipt to completed.
func (r *Receipt) Complete(actor string, at time.Time) error {
	if err := r.transition(StatusCompleted); err != nil {
		return err
	}
	r.CompletedBy = &actor
	r.CompletedAt = &at
	r.UpdatedAt = at
	return nil
}

// Cancel moves a draft or approved receipt to cancelled.
func (r *Receipt) Cancel(reason, actor string, at time.Time) error {
	if err := r.transition(StatusCancelled); err != nil {
		return err
	}
	r.CancelledReason = &reason
	r.CancelledBy = &actor
	r.CancelledAt = &at
	r.UpdatedAt = at
	return nil
}
