// Package memory is an in-process implementation of the storage contracts.
//
// Units of work are serialized: one writer at a time works on a private copy
// of the data which replaces the committed copy on success and is dropped on
// error. Readers outside a unit of work see committed data only.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/receipt"
)

// Compile-time interface checks.
var (
	_ tx.Manager             = (*Store)(nil)
	_ inventory.BatchStore   = (*Store)(nil)
	_ inventory.Ledger       = (*Store)(nil)
	_ inventory.PriceUpdater = (*Store)(nil)
	_ receipt.Repository     = (*Store)(nil)
	_ domain.EventPublisher  = (*Store)(nil)
	_ domain.AuditLogger     = (*Store)(nil)
)

// ErrNoUnitOfWork is returned by operations that require an active unit.
var ErrNoUnitOfWork = errors.New("memory: operation requires a unit of work")

// AuditEntry is a recorded audit log row.
type AuditEntry struct {
	EntityType string
	EntityID   id.ID
	Action     domain.AuditAction
	Changes    map[string]any
	Actor      string
	At         time.Time
}

// ProductPrice is the product record maintained by the price updater.
type ProductPrice struct {
	AverageCost         string
	LatestPurchasePrice string
	UpdatedAt           time.Time
}

type state struct {
	batches  map[id.ID]*inventory.Batch
	order    []id.ID // batch creation order
	ledger   []*inventory.Transaction
	seq      int64 // last ledger sequence number
	receipts map[id.ID]*receipt.Receipt
	events   []domain.DomainEvent
	audit    []AuditEntry
	prices   map[id.ID]ProductPrice
}

func newState() *state {
	return &state{
		batches:  make(map[id.ID]*inventory.Batch),
		receipts: make(map[id.ID]*receipt.Receipt),
		prices:   make(map[id.ID]ProductPrice),
	}
}

// clone copies everything a unit of work may mutate. Ledger entries, events
// and audit entries are append-only, so their elements are shared.
func (st *state) clone() *state {
	c := &state{
		batches:  make(map[id.ID]*inventory.Batch, len(st.batches)),
		order:    append([]id.ID(nil), st.order...),
		ledger:   append([]*inventory.Transaction(nil), st.ledger...),
		seq:      st.seq,
		receipts: make(map[id.ID]*receipt.Receipt, len(st.receipts)),
		events:   append([]domain.DomainEvent(nil), st.events...),
		audit:    append([]AuditEntry(nil), st.audit...),
		prices:   make(map[id.ID]ProductPrice, len(st.prices)),
	}
	for k, b := range st.batches {
		c.batches[k] = copyBatch(b)
	}
	for k, r := range st.receipts {
		c.receipts[k] = copyReceipt(r)
	}
	for k, p := range st.prices {
		c.prices[k] = p
	}
	return c
}

// Store holds all data in memory.
type Store struct {
	writer    sync.Mutex   // held for the duration of a unit of work
	mu        sync.RWMutex // guards committed
	committed *state
	now       func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{committed: newState(), now: time.Now}
}

type unitKey struct{}

type unit struct {
	st *state
}

func unitFrom(ctx context.Context) *unit {
	u, _ := ctx.Value(unitKey{}).(*unit)
	return u
}

// RunInTransaction implements tx.Manager. A ctx that already carries a unit of
// work joins it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if unitFrom(ctx) != nil {
		return fn(ctx)
	}

	hooksCtx, hooks := tx.WithCommitHooks(ctx)
	if err := s.runUnit(hooksCtx, fn); err != nil {
		return err
	}
	hooks.Run(ctx)
	return nil
}

func (s *Store) runUnit(ctx context.Context, fn func(ctx context.Context) error) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	s.mu.RLock()
	work := s.committed.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, unitKey{}, &unit{st: work})); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = work
	s.mu.Unlock()
	return nil
}

// view runs fn against the unit's working copy, or the committed copy under a
// read lock.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if u := unitFrom(ctx); u != nil {
		return fn(u.st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.committed)
}

// update runs fn against the unit's working copy, opening a unit if needed.
func (s *Store) update(ctx context.Context, fn func(st *state) error) error {
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(unitFrom(ctx).st)
	})
}

// Events returns committed outbox events.
func (s *Store) Events() []domain.DomainEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DomainEvent(nil), s.committed.events...)
}

// AuditEntries returns committed audit entries.
func (s *Store) AuditEntries() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuditEntry(nil), s.committed.audit...)
}

// Price returns the committed product price record.
func (s *Store) Price(productID id.ID) (ProductPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.committed.prices[productID]
	return p, ok
}

func copyBatch(b *inventory.Batch) *inventory.Batch {
	c := *b
	return &c
}

func copyReceipt(r *receipt.Receipt) *receipt.Receipt {
	c := *r
	c.Items = append([]receipt.Item(nil), r.Items...)
	return &c
}
