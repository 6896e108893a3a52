package tx

import (
	"context"
	"sync"
)

type hooksKey struct{}

// CommitHooks collects callbacks that must only run once the outermost unit of
// work has committed. Managers create one per top-level transaction.
type CommitHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

// WithCommitHooks attaches a fresh hook list to ctx.
func WithCommitHooks(ctx context.Context) (context.Context, *CommitHooks) {
	h := &CommitHooks{}
	return context.WithValue(ctx, hooksKey{}, h), h
}

// Run invokes the registered callbacks in registration order.
// Call it after a successful commit only; a rolled back unit drops its hooks.
func (h *CommitHooks) Run(ctx context.Context) {
	if h == nil {
		return
	}
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ctx)
	}
}

// AfterCommit schedules fn to run after the unit of work carried by ctx commits.
// Outside of a unit of work fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	h, ok := ctx.Value(hooksKey{}).(*CommitHooks)
	if !ok || h == nil {
		fn(ctx)
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

// HasUnitOfWork reports whether ctx carries an active unit of work.
func HasUnitOfWork(ctx context.Context) bool {
	h, ok := ctx.Value(hooksKey{}).(*CommitHooks)
	return ok && h != nil
}
