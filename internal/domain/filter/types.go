// Package filter defines the small operator DSL used by list and audit queries.
// Storage layers translate Items to their own query builder.
package filter

import "fmt"

// ComparisonType identifies a filter operator.
type ComparisonType string

const (
	Equal          ComparisonType = "eq"
	NotEqual       ComparisonType = "neq"
	Less           ComparisonType = "lt"
	Greater        ComparisonType = "gt"
	LessOrEqual    ComparisonType = "lte"
	GreaterOrEqual ComparisonType = "gte"
	InList         ComparisonType = "in"
	NotInList      ComparisonType = "nin"
	Contains       ComparisonType = "contains" // ILIKE %val%
	IsNull         ComparisonType = "null"
	IsNotNull      ComparisonType = "not_null"
)

// Item is a single filter condition.
type Item struct {
	Field    string         `json:"field"` // snake_case column alias
	Operator ComparisonType `json:"operator"`
	Value    any            `json:"value"`
}

// Validate checks the operator is known and that the value shape fits it.
func (i Item) Validate() error {
	switch i.Operator {
	case Equal, NotEqual, Less, Greater, LessOrEqual, GreaterOrEqual, Contains:
		if i.Value == nil {
			return fmt.Errorf("filter %s %s: value is required", i.Field, i.Operator)
		}
	case InList, NotInList:
		if _, ok := i.Value.([]any); !ok {
			if _, ok := i.Value.([]string); !ok {
				return fmt.Errorf("filter %s %s: list value is required", i.Field, i.Operator)
			}
		}
	case IsNull, IsNotNull:
	default:
		return fmt.Errorf("filter %s: unknown operator %q", i.Field, i.Operator)
	}
	return nil
}
