// Package dto provides request and response shapes of the HTTP API.
package dto

import (
	"encoding/json"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/filter"
)

// ListQuery holds the paging, ordering and advanced filter parameters shared by list endpoints.
type ListQuery struct {
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset  int    `form:"offset" binding:"omitempty,min=0"`
	OrderBy string `form:"orderBy"`
	// Filter is a JSON array of {field, operator, value}.
	Filter string `form:"filter"`
}

// ToListFilter converts the query to the domain list filter.
func (q ListQuery) ToListFilter() (domain.ListFilter, error) {
	f := domain.DefaultListFilter()
	if q.Limit > 0 {
		f.Limit = q.Limit
	}
	f.Offset = q.Offset
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	if q.Filter != "" {
		var items []filter.Item
		if err := json.Unmarshal([]byte(q.Filter), &items); err != nil {
			return f, apperror.NewValidation("invalid filter").WithDetail("error", err.Error())
		}
		for _, it := range items {
			if err := it.Validate(); err != nil {
				return f, apperror.NewValidation(err.Error()).WithDetail("field", "filter")
			}
		}
		f.AdvancedFilters = items
	}
	return f, nil
}

// DateRange is an optional created_at window.
type DateRange struct {
	From *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// Validate rejects inverted ranges.
func (r DateRange) Validate() error {
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return apperror.NewValidation("'to' precedes 'from'").WithDetail("field", "to")
	}
	return nil
}

// ListResponse wraps a page of items.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// FromListResult converts a domain page.
func FromListResult[T any](r domain.ListResult[T]) ListResponse[T] {
	items := r.Items
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, TotalCount: r.TotalCount, Limit: r.Limit, Offset: r.Offset}
}

// ErrorResponse documents the error body rendered by the error middleware.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ParseID parses a path or body id, naming the field on failure.
func ParseID(field, raw string) (id.ID, error) {
	v, err := id.Parse(raw)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid "+field).WithDetail("field", field)
	}
	return v, nil
}

// ParseOptionalID parses an optional id.
func ParseOptionalID(field string, raw *string) (*id.ID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	v, err := ParseID(field, *raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseIDList parses a comma separated list of ids.
func ParseIDList(field string, raw []string) ([]id.ID, error) {
	out := make([]id.ID, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		v, err := ParseID(field, s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
