package tx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAfterCommit_RunsImmediatelyWithoutUnitOfWork(t *testing.T) {
	called := false
	AfterCommit(context.Background(), func(context.Context) { called = true })
	assert.True(t, called)
}

func TestAfterCommit_DeferredUntilRun(t *testing.T) {
	ctx, hooks := WithCommitHooks(context.Background())
	assert.True(t, HasUnitOfWork(ctx))

	var order []int
	AfterCommit(ctx, func(context.Context) { order = append(order, 1) })
	AfterCommit(ctx, func(context.Context) { order = append(order, 2) })
	assert.Empty(t, order)

	hooks.Run(context.Background())
	assert.Equal(t, []int{1, 2}, order)

	// Hooks fire once.
	hooks.Run(context.Background())
	assert.Equal(t, []int{1, 2}, order)
}
