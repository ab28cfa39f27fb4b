package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vango-dev/datatable/pkg/tablestate"
)

// Fetcher loads the raw response for a table state.
type Fetcher[R any] interface {
	Fetch(ctx context.Context, s tablestate.State) (R, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[R any] func(ctx context.Context, s tablestate.State) (R, error)

// Fetch calls f(ctx, s).
func (f FetcherFunc[R]) Fetch(ctx context.Context, s tablestate.State) (R, error) {
	return f(ctx, s)
}

// ResponseAdapter normalizes a raw response into a PaginatedResult.
type ResponseAdapter[R, T any] interface {
	Adapt(raw R) (PaginatedResult[T], error)
}

// AdapterFunc adapts a function to ResponseAdapter.
type AdapterFunc[R, T any] func(raw R) (PaginatedResult[T], error)

// Adapt calls f(raw).
func (f AdapterFunc[R, T]) Adapt(raw R) (PaginatedResult[T], error) {
	return f(raw)
}

// Load runs one fetch and adapt cycle for s.
//
// With a nil adapter the raw response must already be a PaginatedResult[T]
// (value or pointer) or JSON bytes in the canonical
// {data, total, page, limit, totalPages} envelope.
//
// Page and Limit missing from the adapted result are taken from s, and
// TotalPages is computed when the adapter left it zero.
func Load[R, T any](ctx context.Context, f Fetcher[R], a ResponseAdapter[R, T], s tablestate.State) (PaginatedResult[T], error) {
	var zero PaginatedResult[T]

	raw, err := f.Fetch(ctx, s)
	if err != nil {
		return zero, AsFetchError(err)
	}

	var result PaginatedResult[T]
	if a == nil {
		result, err = adaptDefault[T](raw)
	} else {
		result, err = adaptSafely(a, raw)
	}
	if err != nil {
		return zero, err
	}

	if result.Page == 0 {
		result.Page = s.Page
	}
	if result.Limit == 0 {
		result.Limit = s.Limit
	}
	if result.TotalPages == 0 {
		result.TotalPages = TotalPages(result.Total, result.Limit)
	}
	if result.Items == nil {
		result.Items = []T{}
	}
	if err := result.Validate(); err != nil {
		return zero, err
	}
	return result, nil
}

func adaptSafely[R, T any](a ResponseAdapter[R, T], raw R) (result PaginatedResult[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &AdapterError{Message: fmt.Sprintf("adapter panicked: %v", r)}
		}
	}()
	result, err = a.Adapt(raw)
	if err != nil && !IsAdapterError(err) {
		err = &AdapterError{Message: "adapter failed", Err: err}
	}
	return result, err
}

func adaptDefault[T any](raw any) (PaginatedResult[T], error) {
	switch v := raw.(type) {
	case PaginatedResult[T]:
		return v, nil
	case *PaginatedResult[T]:
		if v == nil {
			return PaginatedResult[T]{}, &AdapterError{Message: "nil result"}
		}
		return *v, nil
	case []byte:
		return decodeEnvelope[T](v)
	case json.RawMessage:
		return decodeEnvelope[T](v)
	default:
		return PaginatedResult[T]{}, &AdapterError{
			Message: fmt.Sprintf("response of type %T is not a paginated result; supply a ResponseAdapter", raw),
		}
	}
}
