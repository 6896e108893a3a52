package receipt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/internal/domain/inventory"
	"stockledger/pkg/logger"
)

const (
	// CodePrefix is the numerator prefix for receipt codes.
	CodePrefix = "RCPT"

	// NumeratorStrategy: receipts are primary documents, so codes have no gaps.
	NumeratorStrategy = numerator.StrategyStrict

	entityType = "Receipt"
)

// Outbox event types.
const (
	EventCreated   = "receipt.created"
	EventApproved  = "receipt.approved"
	EventCompleted = "receipt.completed"
	EventCancelled = "receipt.cancelled"
)

// StockReceiver is the part of the costing engine a completion needs.
type StockReceiver interface {
	StockIn(ctx context.Context, cmd inventory.StockInCommand) (*inventory.StockInResult, error)
}

// CreateItemCommand is one requested line.
type CreateItemCommand struct {
	ProductID         id.ID `validate:"required"`
	Quantity          int64 `validate:"gt=0"`
	UnitCost          types.Money
	BatchCode         *string `validate:"omitempty,max=64"`
	ExpiryDate        *time.Time
	ManufacturingDate *time.Time
}

// CreateReceiptCommand creates a draft receipt.
type CreateReceiptCommand struct {
	Code       *string             `validate:"omitempty,max=32"`
	SupplierID id.ID               `validate:"required"`
	Notes      *string             `validate:"omitempty,max=1000"`
	Items      []CreateItemCommand `validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports quantity and cost problems per line before struct rules.
func (c CreateReceiptCommand) Validate() error {
	if len(c.Items) == 0 {
		return apperror.NewValidation("at least one item is required").
			WithDetail("field", "items")
	}
	for i, it := range c.Items {
		if it.Quantity <= 0 {
			return apperror.NewInvalidQuantity(it.Quantity).WithDetail("lineNo", i+1)
		}
		if it.UnitCost.IsNegative() {
			return apperror.NewValidation("unit cost must not be negative").
				WithDetail("field", "items").
				WithDetail("lineNo", i+1)
		}
	}
	if err := validate.Struct(c); err != nil {
		return apperror.NewValidation("invalid receipt").WithCause(err)
	}
	return nil
}

// CompletionResult is returned by CompleteReceipt.
type CompletionResult struct {
	Receipt  *Receipt                   `json:"receipt"`
	StockIns []*inventory.StockInResult `json:"stockIns"`
}

// TransitionEvent is the outbox payload of a status change.
type TransitionEvent struct {
	ReceiptID  id.ID       `json:"receiptId"`
	Code       string      `json:"code"`
	From       Status      `json:"from"`
	To         Status      `json:"to"`
	Actor      string      `json:"actor"`
	Amount     types.Money `json:"totalAmount"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// Service provides the receipt workflow.
type Service struct {
	repo      Repository
	stock     StockReceiver
	numerator numerator.Generator
	txManager tx.Manager
	audit     domain.AuditLogger
	events    domain.EventPublisher
	now       func() time.Time
}

// NewService creates a receipt service.
func NewService(
	repo Repository,
	stock StockReceiver,
	gen numerator.Generator,
	txManager tx.Manager,
	audit domain.AuditLogger,
	events domain.EventPublisher,
) *Service {
	if audit == nil {
		audit = domain.NopAuditLogger{}
	}
	if events == nil {
		events = domain.NopEventPublisher{}
	}
	return &Service{
		repo:      repo,
		stock:     stock,
		numerator: gen,
		txManager: txManager,
		audit:     audit,
		events:    events,
		now:       time.Now,
	}
}

// SetClock overrides time.Now, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateReceipt validates and stores a new draft receipt.
func (s *Service) CreateReceipt(ctx context.Context, cmd CreateReceiptCommand) (*Receipt, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := &Receipt{
		ID:          id.New(),
		SupplierID:  cmd.SupplierID,
		Status:      StatusDraft,
		TotalAmount: types.Zero(),
		Notes:       cmd.Notes,
		CreatedBy:   appctx.ActorOrSystem(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	for _, it := range cmd.Items {
		r.AddItem(Item{
			ProductID:         it.ProductID,
			Quantity:          it.Quantity,
			UnitCost:          it.UnitCost,
			BatchCode:         it.BatchCode,
			ExpiryDate:        it.ExpiryDate,
			ManufacturingDate: it.ManufacturingDate,
		})
	}

	manualCode := cmd.Code != nil && strings.TrimSpace(*cmd.Code) != ""
	if manualCode {
		r.Code = strings.TrimSpace(*cmd.Code)
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		// Drawn in the same unit of work so a failed insert returns the number.
		if !manualCode {
			code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(CodePrefix),
				&numerator.Options{Strategy: NumeratorStrategy}, now)
			if err != nil {
				return fmt.Errorf("generate receipt code: %w", err)
			}
			r.Code = code
		}
		if err := s.repo.Create(ctx, r); err != nil {
			return err
		}
		if err := s.audit.LogChange(ctx, entityType, r.ID, domain.AuditActionCreate, map[string]any{
			"code":         r.Code,
			"supplier_id":  r.SupplierID,
			"items":        len(r.Items),
			"total_amount": r.TotalAmount.String(),
		}); err != nil {
			return fmt.Errorf("audit receipt creation: %w", err)
		}
		return s.events.Publish(ctx, domain.DomainEvent{
			AggregateType: entityType,
			AggregateID:   r.ID,
			EventType:     EventCreated,
			Payload:       TransitionEvent{ReceiptID: r.ID, Code: r.Code, To: StatusDraft, Actor: r.CreatedBy, Amount: r.TotalAmount, OccurredAt: now},
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "receipt created",
		"id", r.ID,
		"code", r.Code,
		"items", len(r.Items),
		"total", r.TotalAmount)

	return r, nil
}

// GetReceipt returns a receipt with its items.
func (s *Service) GetReceipt(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	return s.repo.GetByID(ctx, receiptID)
}

// ListReceipts pages through receipts.
func (s *Service) ListReceipts(ctx context.Context, filter ListFilter) (domain.ListResult[*Receipt], error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return domain.ListResult[*Receipt]{}, apperror.NewValidation("unknown status").
			WithDetail("status", *filter.Status)
	}
	filter.Normalize(200)
	return s.repo.List(ctx, filter)
}

// ApproveReceipt moves a draft receipt to approved.
func (s *Service) ApproveReceipt(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	return s.transition(ctx, receiptID, StatusApproved, func(ctx context.Context, r *Receipt, actor string, at time.Time) error {
		return r.Approve(actor, at)
	})
}

// CancelReceipt moves a draft or approved receipt to cancelled. Inventory is
// never touched.
func (s *Service) CancelReceipt(ctx context.Context, receiptID id.ID, reason string) (*Receipt, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.NewValidation("cancellation reason is required").
			WithDetail("field", "reason")
	}
	return s.transition(ctx, receiptID, StatusCancelled, func(ctx context.Context, r *Receipt, actor string, at time.Time) error {
		return r.Cancel(reason, actor, at)
	})
}

// CompleteReceipt moves an approved receipt to completed and receives every
// item into stock. Completion is atomic: if any item fails, no batch is
// created and the receipt stays approved.
func (s *Service) CompleteReceipt(ctx context.Context, receiptID id.ID) (*CompletionResult, error) {
	var results []*inventory.StockInResult

	r, err := s.transition(ctx, receiptID, StatusCompleted, func(ctx context.Context, r *Receipt, actor string, at time.Time) error {
		if err := r.Complete(actor, at); err != nil {
			return err
		}

		refType := inventory.ReferenceReceipt
		refID := r.ID.String()
		supplierID := r.SupplierID
		results = make([]*inventory.StockInResult, 0, len(r.Items))

		for _, it := range r.Items {
			itemID := it.ID
			res, err := s.stock.StockIn(ctx, inventory.StockInCommand{
				ProductID:         it.ProductID,
				Quantity:          it.Quantity,
				UnitCost:          it.UnitCost,
				ReceiptItemID:     &itemID,
				BatchCode:         it.BatchCode,
				ExpiryDate:        it.ExpiryDate,
				ManufacturingDate: it.ManufacturingDate,
				SupplierID:        &supplierID,
				ReferenceType:     &refType,
				ReferenceID:       &refID,
			})
			if err != nil {
				return fmt.Errorf("receive line %d: %w", it.LineNo, err)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CompletionResult{Receipt: r, StockIns: results}, nil
}

type transitionFunc func(ctx context.Context, r *Receipt, actor string, at time.Time) error

// transition runs one state change under the receipt row lock together with
// its audit record and outbox event.
func (s *Service) transition(ctx context.Context, receiptID id.ID, to Status, apply transitionFunc) (*Receipt, error) {
	var r *Receipt
	var from Status
	actor := appctx.ActorOrSystem(ctx)

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		from = r.Status

		at := s.now().UTC()
		if err := apply(ctx, r, actor, at); err != nil {
			return err
		}

		if err := s.repo.UpdateStatus(ctx, r); err != nil {
			return fmt.Errorf("update receipt status: %w", err)
		}

		changes := map[string]any{
			"from":    string(from),
			"to":      string(to),
			"actor":   actor,
			"version": r.Version,
		}
		if r.CancelledReason != nil {
			changes["reason"] = *r.CancelledReason
		}
		if err := s.audit.LogChange(ctx, entityType, r.ID, domain.AuditActionTransition, changes); err != nil {
			return fmt.Errorf("audit receipt transition: %w", err)
		}

		return s.events.Publish(ctx, domain.DomainEvent{
			AggregateType: entityType,
			AggregateID:   r.ID,
			EventType:     eventFor(to),
			Payload: TransitionEvent{
				ReceiptID:  r.ID,
				Code:       r.Code,
				From:       from,
				To:         to,
				Actor:      actor,
				Amount:     r.TotalAmount,
				OccurredAt: at,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "receipt transitioned",
		"id", r.ID,
		"code", r.Code,
		"from", from,
		"to", to)

	return r, nil
}

func eventFor(to Status) string {
	switch to {
	case StatusApproved:
		return EventApproved
	case StatusCompleted:
		return EventCompleted
	case StatusCancelled:
		return EventCancelled
	default:
		return EventCreated
	}
}
