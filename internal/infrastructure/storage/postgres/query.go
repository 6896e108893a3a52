package postgres

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/filter"
)

// Builder returns a squirrel builder with PostgreSQL placeholders.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// ApplyFilters translates filter items into WHERE clauses. Only whitelisted
// columns are accepted.
func ApplyFilters(q squirrel.SelectBuilder, columns []string, items []filter.Item) (squirrel.SelectBuilder, error) {
	valid := make(map[string]bool, len(columns))
	for _, col := range columns {
		valid[col] = true
	}

	for _, item := range items {
		if !valid[item.Field] {
			return q, apperror.NewValidation("invalid filter column").WithDetail("field", item.Field)
		}
		if err := item.Validate(); err != nil {
			return q, apperror.NewValidation(err.Error())
		}

		switch item.Operator {
		case filter.Equal, filter.InList:
			q = q.Where(squirrel.Eq{item.Field: item.Value})
		case filter.NotEqual, filter.NotInList:
			q = q.Where(squirrel.NotEq{item.Field: item.Value})
		case filter.LessOrEqual:
			q = q.Where(squirrel.LtOrEq{item.Field: item.Value})
		case filter.GreaterOrEqual:
			q = q.Where(squirrel.GtOrEq{item.Field: item.Value})
		case filter.Less:
			q = q.Where(squirrel.Lt{item.Field: item.Value})
		case filter.Greater:
			q = q.Where(squirrel.Gt{item.Field: item.Value})
		case filter.IsNull:
			q = q.Where(squirrel.Eq{item.Field: nil})
		case filter.IsNotNull:
			q = q.Where(squirrel.NotEq{item.Field: nil})
		case filter.Contains:
			q = q.Where(squirrel.ILike{item.Field: fmt.Sprintf("%%%v%%", item.Value)})
		}
	}
	return q, nil
}

// ApplyOrder applies "col" or "-col" ordering, falling back to def when the
// column is not whitelisted. id is always appended as a tie-breaker.
func ApplyOrder(q squirrel.SelectBuilder, columns []string, orderBy, def string) squirrel.SelectBuilder {
	col, dir := parseOrder(orderBy)
	if !contains(columns, col) {
		col, dir = parseOrder(def)
	}
	q = q.OrderBy(col + " " + dir)
	if col != "id" {
		q = q.OrderBy("id " + dir)
	}
	return q
}

func parseOrder(s string) (col, dir string) {
	if strings.HasPrefix(s, "-") {
		return strings.TrimPrefix(s, "-"), "DESC"
	}
	return s, "ASC"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
