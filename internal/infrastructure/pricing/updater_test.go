package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/pkg/logger"
)

type failingUpdater struct{}

var errDown = errors.New("catalog unavailable")

func (failingUpdater) UpdateAverageCostAndPrice(context.Context, id.ID, types.Money) error {
	return errDown
}

func (failingUpdater) SetLatestPurchasePrice(context.Context, id.ID, types.Money) error {
	return errDown
}

func observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestLogging_PassesThrough(t *testing.T) {
	store := memory.NewStore()
	log, logs := observed()
	u := WithLogging(store, log)
	productID := id.New()

	require.NoError(t, u.UpdateAverageCostAndPrice(context.Background(), productID, types.MustMoney("11")))
	require.NoError(t, u.SetLatestPurchasePrice(context.Background(), productID, types.MustMoney("12")))

	price, ok := store.Price(productID)
	require.True(t, ok)
	assert.Equal(t, "11", price.AverageCost)
	assert.Equal(t, "12", price.LatestPurchasePrice)
	assert.Equal(t, 2, logs.FilterMessage("product price updated").Len())
}

func TestLogging_ReportsFailure(t *testing.T) {
	log, logs := observed()
	u := WithLogging(failingUpdater{}, log)

	err := u.UpdateAverageCostAndPrice(context.Background(), id.New(), types.MustMoney("1"))
	assert.ErrorIs(t, err, errDown)

	entries := logs.FilterMessage("product price update failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "average_cost", entries[0].ContextMap()["field"])
}
