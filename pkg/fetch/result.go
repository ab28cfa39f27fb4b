package fetch

import (
	"fmt"
	"math"
)

// PaginatedResult is one page of items plus the totals needed to render
// pagination controls.
type PaginatedResult[T any] struct {
	Items      []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// NewPaginatedResult builds a result and computes TotalPages as
// ceil(total/limit).
func NewPaginatedResult[T any](items []T, total, page, limit int) PaginatedResult[T] {
	return PaginatedResult[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: TotalPages(total, limit),
	}
}

// TotalPages returns ceil(total/limit), or 0 when either is not positive.
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}

// DisplayPages is the page count shown to users: never less than 1.
func (r PaginatedResult[T]) DisplayPages() int {
	return max(1, r.TotalPages)
}

// HasNext reports whether a page follows the current one.
func (r PaginatedResult[T]) HasNext() bool {
	return r.Page < r.TotalPages
}

// HasPrev reports whether a page precedes the current one.
func (r PaginatedResult[T]) HasPrev() bool {
	return r.Page > 1
}

// Validate checks the totals are usable for pagination.
func (r PaginatedResult[T]) Validate() error {
	switch {
	case r.Total < 0:
		return &AdapterError{Message: fmt.Sprintf("total must not be negative, got %d", r.Total)}
	case r.Page < 1:
		return &AdapterError{Message: fmt.Sprintf("page must be at least 1, got %d", r.Page)}
	case r.Limit < 1:
		return &AdapterError{Message: fmt.Sprintf("limit must be at least 1, got %d", r.Limit)}
	case r.TotalPages < 0:
		return &AdapterError{Message: fmt.Sprintf("totalPages must not be negative, got %d", r.TotalPages)}
	}
	return nil
}
