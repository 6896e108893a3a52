package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/inventory"
	"stockledger/pkg/logger"
)

// Engine is the part of the costing engine the audit needs.
type Engine interface {
	ProductsWithLiveStock(ctx context.Context) ([]id.ID, error)
	RecalculateWAC(ctx context.Context, productID id.ID) (*inventory.WACRecalculation, error)
}

// Exclusive runs fn on at most one worker instance.
type Exclusive interface {
	RunExclusive(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// AuditReport summarises one audit run.
type AuditReport struct {
	Checked  int
	Failed   int
	Drifting []*inventory.WACRecalculation
}

// WACAuditJob detects average cost drift. It reports and never repairs.
type WACAuditJob struct {
	engine  Engine
	metrics inventory.Metrics
	lock    Exclusive
	log     *logger.Logger
}

// NewWACAuditJob creates the job. metrics and lock may be nil.
func NewWACAuditJob(engine Engine, metrics inventory.Metrics, lock Exclusive, log *logger.Logger) *WACAuditJob {
	return &WACAuditJob{engine: engine, metrics: metrics, lock: lock, log: log.WithComponent("wac_audit")}
}

// Handle is the asynq handler for TaskWACAudit.
func (j *WACAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload WACAuditPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
		}
	}
	products, err := parseIDs(payload.ProductIDs)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	run := func(ctx context.Context) error {
		_, err := j.Run(ctx, products)
		return err
	}
	if j.lock == nil {
		return run(ctx)
	}
	ran, err := j.lock.RunExclusive(ctx, TaskWACAudit, 10*time.Minute, run)
	if err == nil && !ran {
		j.log.Infow("audit already running elsewhere, skipped")
	}
	return err
}

// Run audits products, or every product with live stock when products is empty.
// A failure on one product is logged and does not stop the run.
func (j *WACAuditJob) Run(ctx context.Context, products []id.ID) (*AuditReport, error) {
	if len(products) == 0 {
		var err error
		if products, err = j.engine.ProductsWithLiveStock(ctx); err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
	}

	report := &AuditReport{}
	for _, productID := range products {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		recalc, err := j.engine.RecalculateWAC(ctx, productID)
		if err != nil {
			report.Failed++
			j.log.Errorw("recalculate failed", "product_id", productID, "error", err)
			continue
		}
		report.Checked++
		if j.metrics != nil {
			j.metrics.RecordDrift(productID, recalc.Drift())
		}
		if recalc.HasDrift() {
			report.Drifting = append(report.Drifting, recalc)
			j.log.Warnw("average cost drift detected",
				"product_id", productID,
				"ledger_average", recalc.Previous.String(),
				"batch_average", recalc.New.String(),
				"drift", recalc.Drift().String())
		}
	}

	j.log.Infow("audit finished", "checked", report.Checked, "failed", report.Failed, "drifting", len(report.Drifting))
	return report, nil
}

func parseIDs(raw []string) ([]id.ID, error) {
	out := make([]id.ID, 0, len(raw))
	for _, s := range raw {
		v, err := id.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid product id %q", s)
		}
		out = append(out, v)
	}
	return out, nil
}
