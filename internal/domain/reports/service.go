package reports

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
)

// Service provides report generation operations.
type Service struct {
	repo     Repository
	cache    Cache
	exporter ValuationExporter
	now      func() time.Time

	lowStockThreshold int64
	expiryWindowDays  int
}

// NewService creates a new reports service. cache and exporter may be nil.
func NewService(repo Repository, cache Cache, exporter ValuationExporter) *Service {
	return &Service{
		repo:              repo,
		cache:             cache,
		exporter:          exporter,
		now:               time.Now,
		lowStockThreshold: DefaultLowStockThreshold,
		expiryWindowDays:  DefaultExpiryWindowDays,
	}
}

// SetDefaults replaces the threshold and window used when a caller omits them.
// Negative values are ignored.
func (s *Service) SetDefaults(lowStockThreshold int64, expiryWindowDays int) {
	if lowStockThreshold >= 0 {
		s.lowStockThreshold = lowStockThreshold
	}
	if expiryWindowDays >= 0 {
		s.expiryWindowDays = expiryWindowDays
	}
}

// SetClock overrides time.Now, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GetInventoryValueReport values live stock per product. An empty productIDs
// means every product.
func (s *Service) GetInventoryValueReport(ctx context.Context, productIDs []id.ID) (*ValuationReport, error) {
	ids := sortedIDs(productIDs)
	return cached(ctx, s, []string{"reports", "valuation", joinIDs(ids)}, func(ctx context.Context) (*ValuationReport, error) {
		batches, err := s.repo.LiveBatches(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load live batches: %w", err)
		}
		return buildValuation(batches, s.now().UTC()), nil
	})
}

func buildValuation(batches []*inventory.Batch, now time.Time) *ValuationReport {
	grouped := make(map[id.ID][]*inventory.Batch)
	order := make([]id.ID, 0)
	for _, b := range batches {
		if _, ok := grouped[b.ProductID]; !ok {
			order = append(order, b.ProductID)
		}
		grouped[b.ProductID] = append(grouped[b.ProductID], b)
	}
	sort.Slice(order, func(i, j int) bool { return id.Compare(order[i], order[j]) < 0 })

	report := &ValuationReport{
		GeneratedAt: now,
		Items:       make([]ValuationItem, 0, len(order)),
		TotalValue:  types.Zero(),
	}
	for _, productID := range order {
		pos := inventory.Valuate(grouped[productID])
		if pos.Quantity == 0 {
			continue
		}
		report.Items = append(report.Items, ValuationItem{
			ProductID:   productID,
			Quantity:    pos.Quantity,
			Value:       pos.Value,
			AverageCost: pos.AverageCost(),
			BatchCount:  pos.BatchCount,
		})
		report.TotalQuantity += pos.Quantity
		report.TotalValue = report.TotalValue.Add(pos.Value)
	}
	report.ProductCount = len(report.Items)
	report.AverageCost = types.AverageCost(report.TotalValue, report.TotalQuantity, types.Zero())
	return report
}

// GetLowStockAlert flags products whose live quantity is at or below
// minimumQuantity (the configured default when nil).
func (s *Service) GetLowStockAlert(ctx context.Context, minimumQuantity *int64) (*LowStockAlert, error) {
	threshold := s.lowStockThreshold
	if minimumQuantity != nil {
		threshold = *minimumQuantity
	}
	if threshold < 0 {
		return nil, apperror.NewValidation("minimum quantity must not be negative").
			WithDetail("field", "minimumQuantity")
	}

	key := []string{"reports", "low_stock", strconv.FormatInt(threshold, 10)}
	return cached(ctx, s, key, func(ctx context.Context) (*LowStockAlert, error) {
		stock, err := s.repo.ProductStock(ctx)
		if err != nil {
			return nil, fmt.Errorf("load product stock: %w", err)
		}

		alert := &LowStockAlert{
			GeneratedAt: s.now().UTC(),
			Threshold:   threshold,
			Items:       make([]LowStockItem, 0),
		}
		for _, p := range stock {
			if p.Quantity > threshold {
				continue
			}
			tier := TierLowStock
			if p.Quantity <= 0 {
				tier = TierOutOfStock
				alert.OutOfStock++
			} else {
				alert.LowStock++
			}
			alert.Items = append(alert.Items, LowStockItem{
				ProductID:  p.ProductID,
				Quantity:   p.Quantity,
				BatchCount: p.BatchCount,
				Tier:       tier,
			})
		}
		sort.SliceStable(alert.Items, func(i, j int) bool {
			if alert.Items[i].Quantity != alert.Items[j].Quantity {
				return alert.Items[i].Quantity < alert.Items[j].Quantity
			}
			return id.Compare(alert.Items[i].ProductID, alert.Items[j].ProductID) < 0
		})
		return alert, nil
	})
}

// GetExpiringBatchesAlert flags live batches expiring within daysBeforeExpiry
// calendar days (the configured default when nil). Already expired batches
// are always included.
func (s *Service) GetExpiringBatchesAlert(ctx context.Context, daysBeforeExpiry *int) (*ExpiryAlert, error) {
	window := s.expiryWindowDays
	if daysBeforeExpiry != nil {
		window = *daysBeforeExpiry
	}
	if window < 0 {
		return nil, apperror.NewValidation("days before expiry must not be negative").
			WithDetail("field", "daysBeforeExpiry")
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	key := []string{"reports", "expiring", strconv.Itoa(window), today.Format("2006-01-02")}
	return cached(ctx, s, key, func(ctx context.Context) (*ExpiryAlert, error) {
		until := today.AddDate(0, 0, window+1).Add(-time.Nanosecond)
		batches, err := s.repo.ExpiringBatches(ctx, until)
		if err != nil {
			return nil, fmt.Errorf("load expiring batches: %w", err)
		}

		alert := &ExpiryAlert{
			GeneratedAt:      now,
			DaysBeforeExpiry: window,
			Items:            make([]ExpiringBatch, 0, len(batches)),
			ByTier:           make(map[ExpiryTier]int),
			ValueAtRisk:      types.Zero(),
		}
		for _, b := range batches {
			if !b.IsLive() {
				continue
			}
			days, ok := b.DaysUntilExpiry(now)
			if !ok || days > window {
				continue
			}
			tier := ClassifyExpiry(days)
			alert.Items = append(alert.Items, ExpiringBatch{
				BatchID:           b.ID,
				ProductID:         b.ProductID,
				BatchCode:         b.BatchCode,
				RemainingQuantity: b.RemainingQuantity,
				UnitCost:          b.UnitCost,
				Value:             b.Value(),
				ExpiryDate:        *b.ExpiryDate,
				DaysUntilExpiry:   days,
				Tier:              tier,
			})
			alert.ByTier[tier]++
			alert.ValueAtRisk = alert.ValueAtRisk.Add(b.Value())
		}
		sort.SliceStable(alert.Items, func(i, j int) bool {
			return alert.Items[i].DaysUntilExpiry < alert.Items[j].DaysUntilExpiry
		})
		return alert, nil
	})
}

// ExportValuation renders the valuation report as an XLSX workbook.
func (s *Service) ExportValuation(ctx context.Context, productIDs []id.ID) ([]byte, error) {
	if s.exporter == nil {
		return nil, apperror.NewInternal(fmt.Errorf("valuation exporter not configured"))
	}
	report, err := s.GetInventoryValueReport(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	out, err := s.exporter.Valuation(report)
	if err != nil {
		return nil, fmt.Errorf("export valuation: %w", err)
	}
	return out, nil
}

// cached runs loader through the report cache when one is configured.
func cached[T any](ctx context.Context, s *Service, parts []string, loader func(context.Context) (T, error)) (T, error) {
	if s.cache == nil {
		return loader(ctx)
	}
	var out T
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return loader(ctx)
	}
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return loader(ctx)
	})
	return out, err
}

func sortedIDs(ids []id.ID) []id.ID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]id.ID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i], out[j]) < 0 })
	return out
}

func joinIDs(ids []id.ID) string {
	if len(ids) == 0 {
		return "all"
	}
	parts := make([]string, len(ids))
	for i, v := range ids {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}
