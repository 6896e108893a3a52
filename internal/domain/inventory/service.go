package inventory

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/inventory")

// Event types written to the outbox.
const (
	AggregateProduct     = "Product"
	EventStockReceived   = "stock.received"
	EventStockDispatched = "stock.dispatched"
	EventBatchRemoved    = "stock.batch_removed"
)

// MovementEvent is the outbox payload of a stock movement.
type MovementEvent struct {
	TransactionID id.ID           `json:"transactionId"`
	ProductID     id.ID           `json:"productId"`
	Type          TransactionType `json:"type"`
	Quantity      int64           `json:"quantity"`
	TotalCost     types.Money     `json:"totalCost"`
	AverageCost   types.Money     `json:"averageCost"`
	OnHand        int64           `json:"onHand"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// Service is the costing engine. It exclusively owns the mutation of
// remaining quantities and the appending of ledger entries.
type Service struct {
	batches   BatchStore
	ledger    Ledger
	txManager tx.Manager
	pricing   PriceUpdater
	events    domain.EventPublisher
	audit     domain.AuditLogger
	metrics   Metrics
	now       func() time.Time
}

// Option customises the engine.
type Option func(*Service)

// WithPriceUpdater sets the downstream product price updater.
func WithPriceUpdater(p PriceUpdater) Option {
	return func(s *Service) { s.pricing = p }
}

// WithEventPublisher sets the outbox publisher.
func WithEventPublisher(p domain.EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithAuditLogger sets the audit sink used by administrative commands.
func WithAuditLogger(a domain.AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the costing engine.
func NewService(batches BatchStore, ledger Ledger, txManager tx.Manager, opts ...Option) *Service {
	s := &Service{
		batches:   batches,
		ledger:    ledger,
		txManager: txManager,
		pricing:   nopPriceUpdater{},
		events:    domain.NopEventPublisher{},
		audit:     domain.NopAuditLogger{},
		metrics:   nopMetrics{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// standing is a product's live batches together with the head of its ledger.
type standing struct {
	live []*Batch
	pos  Position
	last *Transaction
}

// average is the weighted average cost in force: live value over live
// quantity, or the average the ledger last recorded when nothing is on hand.
func (st standing) average() types.Money {
	return st.pos.AverageCostOr(st.recorded())
}

// recorded is the average on the latest ledger entry, zero without history.
func (st standing) recorded() types.Money {
	if st.last == nil {
		return types.Zero()
	}
	return st.last.NewAverageCostSnapshot
}

func (s *Service) loadStanding(ctx context.Context, productID id.ID) (standing, error) {
	live, err := s.batches.GetBatchesOrderedByAge(ctx, productID)
	if err != nil {
		return standing{}, fmt.Errorf("load batches: %w", err)
	}
	last, err := s.ledger.Last(ctx, productID)
	if err != nil {
		return standing{}, fmt.Errorf("load last ledger entry: %w", err)
	}
	return standing{live: live, pos: Valuate(live), last: last}, nil
}

// StockIn receives a new batch and revalues the product.
//
// Batch creation and the IN ledger entry form one unit of work. The product
// price update runs after that unit commits and never undoes it.
func (s *Service) StockIn(ctx context.Context, cmd StockInCommand) (*StockInResult, error) {
	if err := cmd.Validate(); err != nil {
		s.metrics.RecordRejection(codeOf(err))
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "inventory.StockIn", trace.WithAttributes(
		attribute.String("product.id", cmd.ProductID.String()),
		attribute.Int64("quantity", cmd.Quantity),
	))
	defer span.End()

	unitCost := types.RoundCost(cmd.UnitCost)
	var result *StockInResult

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.batches.LockProduct(ctx, cmd.ProductID); err != nil {
			return err
		}

		st, err := s.loadStanding(ctx, cmd.ProductID)
		if err != nil {
			return err
		}

		prevAvg := st.average()
		next := st.pos.Receive(cmd.Quantity, unitCost)
		newQty := next.Quantity
		newAvg := next.AverageCostOr(unitCost)
		now := s.now().UTC()

		batch := &Batch{
			ID:                id.New(),
			ProductID:         cmd.ProductID,
			BatchCode:         cmd.BatchCode,
			UnitCost:          unitCost,
			OriginalQuantity:  cmd.Quantity,
			RemainingQuantity: cmd.Quantity,
			ExpiryDate:        cmd.ExpiryDate,
			ManufacturingDate: cmd.ManufacturingDate,
			SupplierID:        cmd.SupplierID,
			ReceiptItemID:     cmd.ReceiptItemID,
			CreatedAt:         now,
		}
		if err := s.batches.CreateBatch(ctx, batch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}

		refType := cmd.ReferenceType
		if refType == nil {
			t := ReferenceDirect
			if cmd.ReceiptItemID != nil {
				t = ReferenceReceipt
			}
			refType = &t
		}

		entry := &Transaction{
			ID:                        id.New(),
			ProductID:                 cmd.ProductID,
			Type:                      TransactionIn,
			Quantity:                  cmd.Quantity,
			UnitCostPrice:             unitCost,
			TotalCostValue:            types.Extend(unitCost, cmd.Quantity),
			RemainingQuantitySnapshot: newQty,
			NewAverageCostSnapshot:    newAvg,
			BatchID:                   &batch.ID,
			ReferenceType:             refType,
			ReferenceID:               cmd.ReferenceID,
			Notes:                     cmd.Notes,
			CreatedBy:                 appctx.ActorOrSystem(ctx),
			CreatedAt:                 now,
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}

		if err := s.publishMovement(ctx, entry); err != nil {
			return err
		}

		result = &StockInResult{
			Transaction:         entry,
			Batch:               batch,
			PreviousAverageCost: prevAvg,
			NewAverageCost:      newAvg,
			TotalQuantity:       newQty,
		}

		tx.AfterCommit(ctx, func(ctx context.Context) {
			s.metrics.RecordMovement(TransactionIn, cmd.Quantity, entry.TotalCostValue)
			s.propagatePrices(ctx, cmd.ProductID, newAvg, unitCost)
		})
		return nil
	})
	if err != nil {
		s.metrics.RecordRejection(codeOf(err))
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, "stock received",
		"product_id", cmd.ProductID,
		"batch_id", result.Batch.ID,
		"quantity", cmd.Quantity,
		"unit_cost", unitCost,
		"average_cost", result.NewAverageCost,
		"on_hand", result.TotalQuantity)

	return result, nil
}

// propagatePrices pushes the new average and the latest purchase price to the
// product record. Failures are logged and swallowed.
func (s *Service) propagatePrices(ctx context.Context, productID id.ID, avg, latest types.Money) {
	if err := s.pricing.UpdateAverageCostAndPrice(ctx, productID, avg); err != nil {
		s.pricingFailed(ctx, productID, "update_average_cost", err)
	}
	if err := s.pricing.SetLatestPurchasePrice(ctx, productID, latest); err != nil {
		s.pricingFailed(ctx, productID, "set_latest_purchase_price", err)
	}
}

func (s *Service) pricingFailed(ctx context.Context, productID id.ID, op string, err error) {
	appErr := apperror.NewDownstreamPricingFailure(productID.String(), err).WithDetail("operation", op)
	s.metrics.RecordPricingFailure()
	logger.Warn(ctx, "product price update failed",
		"product_id", productID,
		"operation", op,
		"code", appErr.Code,
		"error", err)
}

// StockOut dispatches units oldest batch first. Either the whole quantity is
// consumed or nothing is.
func (s *Service) StockOut(ctx context.Context, cmd StockOutCommand) (*StockOutResult, error) {
	if err := cmd.Validate(); err != nil {
		s.metrics.RecordRejection(codeOf(err))
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "inventory.StockOut", trace.WithAttributes(
		attribute.String("product.id", cmd.ProductID.String()),
		attribute.Int64("quantity", cmd.Quantity),
	))
	defer span.End()

	var result *StockOutResult

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.batches.LockProduct(ctx, cmd.ProductID); err != nil {
			return err
		}

		st, err := s.loadStanding(ctx, cmd.ProductID)
		if err != nil {
			return err
		}

		alloc := AllocateFIFO(st.live, cmd.Quantity)
		if !alloc.Fulfilled() {
			return apperror.NewInsufficientStock(cmd.ProductID.String(), cmd.Quantity, alloc.Available)
		}

		// The dispatch is costed at the average in force. FIFO decides which
		// batches are left, so the snapshot records their valuation.
		avg := st.average()
		after := st.pos.Release(cmd.Quantity, alloc.TotalCost)

		for _, c := range alloc.Consumptions {
			if err := s.batches.DecrementRemaining(ctx, c.BatchID, c.Quantity); err != nil {
				return fmt.Errorf("decrement batch %s: %w", c.BatchID, err)
			}
		}

		refType := cmd.ReferenceType
		entry := &Transaction{
			ID:                        id.New(),
			ProductID:                 cmd.ProductID,
			Type:                      TransactionOut,
			Quantity:                  -cmd.Quantity,
			UnitCostPrice:             avg,
			TotalCostValue:            alloc.TotalCost,
			RemainingQuantitySnapshot: after.Quantity,
			NewAverageCostSnapshot:    after.AverageCostOr(avg),
			ReferenceType:             &refType,
			ReferenceID:               cmd.ReferenceID,
			Notes:                     cmd.Notes,
			CreatedBy:                 appctx.ActorOrSystem(ctx),
			CreatedAt:                 s.now().UTC(),
		}
		if len(alloc.Consumptions) == 1 {
			entry.BatchID = &alloc.Consumptions[0].BatchID
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}

		if err := s.publishMovement(ctx, entry); err != nil {
			return err
		}

		result = &StockOutResult{
			Transaction:       entry,
			AffectedBatches:   alloc.Consumptions,
			TotalCostValue:    alloc.TotalCost,
			AverageCostUsed:   avg,
			RemainingQuantity: entry.RemainingQuantitySnapshot,
		}

		tx.AfterCommit(ctx, func(context.Context) {
			s.metrics.RecordMovement(TransactionOut, cmd.Quantity, alloc.TotalCost)
		})
		return nil
	})
	if err != nil {
		s.metrics.RecordRejection(codeOf(err))
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, "stock dispatched",
		"product_id", cmd.ProductID,
		"quantity", cmd.Quantity,
		"reference_type", cmd.ReferenceType,
		"batches", len(result.AffectedBatches),
		"cost", result.TotalCostValue,
		"on_hand", result.RemainingQuantity)

	return result, nil
}

func (s *Service) publishMovement(ctx context.Context, entry *Transaction) error {
	eventType := EventStockReceived
	if entry.Type == TransactionOut {
		eventType = EventStockDispatched
	}
	err := s.events.Publish(ctx, domain.DomainEvent{
		AggregateType: AggregateProduct,
		AggregateID:   entry.ProductID,
		EventType:     eventType,
		Payload: MovementEvent{
			TransactionID: entry.ID,
			ProductID:     entry.ProductID,
			Type:          entry.Type,
			Quantity:      entry.Quantity,
			TotalCost:     entry.TotalCostValue,
			AverageCost:   entry.NewAverageCostSnapshot,
			OnHand:        entry.RemainingQuantitySnapshot,
			OccurredAt:    entry.CreatedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// GetWeightedAverageCost returns the average cost currently in force, derived
// from live batches. A product without history has a zero average.
func (s *Service) GetWeightedAverageCost(ctx context.Context, productID id.ID) (types.Money, error) {
	st, err := s.loadStanding(ctx, productID)
	if err != nil {
		return types.Zero(), err
	}
	return st.average(), nil
}

// GetInventorySummary returns on-hand quantity and live batch count.
func (s *Service) GetInventorySummary(ctx context.Context, productID id.ID) (*InventorySummary, error) {
	st, err := s.loadStanding(ctx, productID)
	if err != nil {
		return nil, err
	}

	return &InventorySummary{
		ProductID:     productID,
		TotalQuantity: st.pos.Quantity,
		BatchCount:    st.pos.BatchCount,
		TotalValue:    st.pos.Value,
		AverageCost:   st.average(),
	}, nil
}

// ListBatches returns every batch of the product, oldest first.
func (s *Service) ListBatches(ctx context.Context, productID id.ID) ([]*Batch, error) {
	return s.batches.ListBatches(ctx, productID)
}

// ListTransactions returns the product's ledger in creation order.
func (s *Service) ListTransactions(ctx context.Context, productID id.ID) ([]*Transaction, error) {
	return s.ledger.ListByProduct(ctx, productID)
}

// QueryTransactions pages through the ledger.
func (s *Service) QueryTransactions(ctx context.Context, filter LedgerFilter) (domain.ListResult[*Transaction], error) {
	filter.Normalize(500)
	return s.ledger.Query(ctx, filter)
}

// RecalculateWAC derives the weighted average cost from live batches and
// compares it with the average the ledger last recorded. It only reads.
func (s *Service) RecalculateWAC(ctx context.Context, productID id.ID) (*WACRecalculation, error) {
	st, err := s.loadStanding(ctx, productID)
	if err != nil {
		return nil, err
	}
	return recalculation(productID, st), nil
}

func recalculation(productID id.ID, st standing) *WACRecalculation {
	return &WACRecalculation{
		ProductID:     productID,
		Previous:      st.recorded(),
		New:           st.average(),
		TotalQuantity: st.pos.Quantity,
		TotalValue:    st.pos.Value,
	}
}

// RepairWAC is the explicit administrative repair. When live batches no
// longer match the ledger it appends a REVALUATION entry carrying the
// quantity and value differences, so that the ledger and the engine agree
// again, and records who did it. Existing entries are never rewritten.
func (s *Service) RepairWAC(ctx context.Context, productID id.ID) (*WACRecalculation, error) {
	var recalc *WACRecalculation
	var entry *Transaction

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.batches.LockProduct(ctx, productID); err != nil {
			return err
		}
		st, err := s.loadStanding(ctx, productID)
		if err != nil {
			return err
		}
		recalc = recalculation(productID, st)
		if !recalc.HasDrift() {
			return nil
		}

		history, err := s.ledger.ListByProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		replayed := Replay(history)

		refType := ReferenceAdjustment
		notes := "average cost repair"
		entry = &Transaction{
			ID:                        id.New(),
			ProductID:                 productID,
			Type:                      TransactionRevaluation,
			Quantity:                  st.pos.Quantity - replayed.Quantity,
			UnitCostPrice:             recalc.New,
			TotalCostValue:            st.pos.Value.Sub(replayed.Value),
			RemainingQuantitySnapshot: st.pos.Quantity,
			NewAverageCostSnapshot:    recalc.New,
			ReferenceType:             &refType,
			Notes:                     &notes,
			CreatedBy:                 appctx.ActorOrSystem(ctx),
			CreatedAt:                 s.now().UTC(),
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}

		return s.audit.LogChange(ctx, AggregateProduct, productID, domain.AuditActionRepair, map[string]any{
			"previous_average_cost": recalc.Previous.String(),
			"new_average_cost":      recalc.New.String(),
			"total_quantity":        recalc.TotalQuantity,
			"total_value":           recalc.TotalValue.String(),
			"transaction_id":        entry.ID.String(),
			"actor":                 appctx.ActorOrSystem(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return recalc, nil
	}

	if err := s.pricing.UpdateAverageCostAndPrice(ctx, productID, recalc.New); err != nil {
		s.pricingFailed(ctx, productID, "repair_average_cost", err)
	}

	s.metrics.RecordDrift(productID, recalc.Drift())
	logger.Warn(ctx, "average cost repaired",
		"product_id", productID,
		"previous", recalc.Previous,
		"new", recalc.New,
		"quantity_delta", entry.Quantity,
		"value_delta", entry.TotalCostValue)

	return recalc, nil
}

// RemoveBatch is the administrative correction that takes a batch out of
// costing. Its remaining units leave the ledger as an ADJUSTMENT so that
// replaying the ledger still matches the live batches.
func (s *Service) RemoveBatch(ctx context.Context, batchID id.ID, reason string) (*Transaction, error) {
	if reason == "" {
		return nil, apperror.NewValidation("reason is required").WithDetail("field", "reason")
	}

	var entry *Transaction
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		batch, err := s.batches.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if err := s.batches.LockProduct(ctx, batch.ProductID); err != nil {
			return err
		}
		// Re-read under the lock.
		if batch, err = s.batches.GetBatch(ctx, batchID); err != nil {
			return err
		}
		if batch.RemovedAt != nil {
			return apperror.NewConflict("batch already removed").WithDetail("batch_id", batchID)
		}

		st, err := s.loadStanding(ctx, batch.ProductID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if batch.RemainingQuantity > 0 {
			after := st.pos.Release(batch.RemainingQuantity, batch.Value())
			refType := ReferenceAdjustment
			refID := batch.ID.String()
			entry = &Transaction{
				ID:                        id.New(),
				ProductID:                 batch.ProductID,
				Type:                      TransactionOut,
				Quantity:                  -batch.RemainingQuantity,
				UnitCostPrice:             batch.UnitCost,
				TotalCostValue:            batch.Value(),
				RemainingQuantitySnapshot: after.Quantity,
				NewAverageCostSnapshot:    after.AverageCostOr(st.average()),
				BatchID:                   &batch.ID,
				ReferenceType:             &refType,
				ReferenceID:               &refID,
				Notes:                     &reason,
				CreatedBy:                 appctx.ActorOrSystem(ctx),
				CreatedAt:                 now,
			}
			if err := s.ledger.Append(ctx, entry); err != nil {
				return fmt.Errorf("append ledger entry: %w", err)
			}
		}

		if err := s.batches.SoftRemove(ctx, batchID, reason, now); err != nil {
			return fmt.Errorf("remove batch: %w", err)
		}

		if err := s.audit.LogChange(ctx, "Batch", batchID, domain.AuditActionRemove, map[string]any{
			"reason":    reason,
			"remaining": batch.RemainingQuantity,
		}); err != nil {
			return fmt.Errorf("audit batch removal: %w", err)
		}

		return s.events.Publish(ctx, domain.DomainEvent{
			AggregateType: AggregateProduct,
			AggregateID:   batch.ProductID,
			EventType:     EventBatchRemoved,
			Payload:       map[string]any{"batchId": batchID, "reason": reason, "quantity": batch.RemainingQuantity},
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ProductsWithLiveStock lists products that currently hold stock.
func (s *Service) ProductsWithLiveStock(ctx context.Context) ([]id.ID, error) {
	return s.batches.ProductsWithLiveStock(ctx)
}

func codeOf(err error) string {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return apperror.CodeInternal
}
