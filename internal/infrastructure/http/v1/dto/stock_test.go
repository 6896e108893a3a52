package dto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/infrastructure/http/v1/dto"
)

func ptr[T any](v T) *T { return &v }

func TestStockInRequest_ToCommand(t *testing.T) {
	productID, itemID := id.New(), id.New()

	cmd, err := dto.StockInRequest{
		ProductID:     productID.String(),
		Quantity:      12,
		UnitCost:      types.MustMoney("3.5"),
		ReceiptItemID: ptr(itemID.String()),
	}.ToCommand()
	require.NoError(t, err)

	assert.Equal(t, productID, cmd.ProductID)
	require.NotNil(t, cmd.ReceiptItemID)
	assert.Equal(t, itemID, *cmd.ReceiptItemID)
	assert.Nil(t, cmd.ReferenceType, "the engine derives it from the receipt line")
	assert.Nil(t, cmd.SupplierID)
}

func TestStockInRequest_ToCommandRejectsBadIDs(t *testing.T) {
	productID := id.New().String()
	tests := []struct {
		name  string
		req   dto.StockInRequest
		field string
	}{
		{"product", dto.StockInRequest{ProductID: "nope"}, "productId"},
		{"supplier", dto.StockInRequest{ProductID: productID, SupplierID: ptr("x")}, "supplierId"},
		{"receipt item", dto.StockInRequest{ProductID: productID, ReceiptItemID: ptr("x")}, "receiptItemId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.ToCommand()
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, tt.field, appErr.Details["field"])
		})
	}

	cmd, err := dto.StockInRequest{ProductID: productID, ReceiptItemID: ptr("")}.ToCommand()
	require.NoError(t, err)
	assert.Nil(t, cmd.ReceiptItemID)
}
