package inventory

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// StockInCommand receives qty units of a product at unitCost as a new batch.
type StockInCommand struct {
	ProductID         id.ID       `validate:"required"`
	Quantity          int64       `validate:"gt=0"`
	UnitCost          types.Money
	ReceiptItemID     *id.ID
	BatchCode         *string `validate:"omitempty,max=64"`
	ExpiryDate        *time.Time
	ManufacturingDate *time.Time
	SupplierID        *id.ID
	ReferenceType     *string `validate:"omitempty,max=32"`
	ReferenceID       *string `validate:"omitempty,max=128"`
	Notes             *string `validate:"omitempty,max=1000"`
}

// StockOutCommand dispatches qty units of a product, oldest batches first.
type StockOutCommand struct {
	ProductID     id.ID   `validate:"required"`
	Quantity      int64   `validate:"gt=0"`
	ReferenceType string  `validate:"required,max=32"`
	ReferenceID   *string `validate:"omitempty,max=128"`
	Notes         *string `validate:"omitempty,max=1000"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks quantity first so it surfaces as INVALID_QUANTITY, then the
// remaining struct rules.
func (c StockInCommand) Validate() error {
	if c.Quantity <= 0 {
		return apperror.NewInvalidQuantity(c.Quantity)
	}
	if c.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost must not be negative").
			WithDetail("field", "unitCost")
	}
	if c.ManufacturingDate != nil && c.ExpiryDate != nil && c.ExpiryDate.Before(*c.ManufacturingDate) {
		return apperror.NewValidation("expiry date precedes manufacturing date").
			WithDetail("field", "expiryDate")
	}
	return structError(validate.Struct(c))
}

// Validate implements the same ordering as StockInCommand.Validate.
func (c StockOutCommand) Validate() error {
	if c.Quantity <= 0 {
		return apperror.NewInvalidQuantity(c.Quantity)
	}
	return structError(validate.Struct(c))
}

// structError maps validator output to a VALIDATION_ERROR listing the failing fields.
func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.NewValidation(err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return apperror.NewValidation("invalid command").WithDetail("fields", fields)
}
