// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// CostPlaces is the scale unit costs and average costs are kept at.
// Matches NUMERIC(20,6) columns.
const CostPlaces int32 = 6

// NewMoney creates a Money value from a float.
// WARNING: Use NewMoneyFromString for precise values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Extend returns cost * quantity.
func Extend(cost Money, quantity int64) Money {
	return cost.Mul(decimal.NewFromInt(quantity))
}

// RoundCost rounds a per-unit cost to CostPlaces.
func RoundCost(m Money) Money {
	return m.Round(CostPlaces)
}

// AverageCost divides value by quantity and rounds to CostPlaces.
// A non-positive quantity yields fallback.
func AverageCost(value Money, quantity int64, fallback Money) Money {
	if quantity <= 0 {
		return RoundCost(fallback)
	}
	return value.DivRound(decimal.NewFromInt(quantity), CostPlaces)
}
