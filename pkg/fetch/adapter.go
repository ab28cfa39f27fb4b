package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// JSONAdapter returns an adapter for backends that already answer with
// the canonical {data, total, page, limit, totalPages} envelope.
func JSONAdapter[T any]() ResponseAdapter[[]byte, T] {
	return AdapterFunc[[]byte, T](decodeEnvelope[T])
}

// decodeEnvelope checks the canonical envelope shape before decoding:
// data must be an array and total, page and limit must be numbers.
func decodeEnvelope[T any](body []byte) (PaginatedResult[T], error) {
	var zero PaginatedResult[T]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return zero, &AdapterError{Message: "body is not a JSON object", Err: err}
	}
	if !isArray(fields["data"]) {
		return zero, &AdapterError{Message: `"data" must be an array`}
	}
	for _, name := range []string{"total", "page", "limit"} {
		if !isNumber(fields[name]) {
			return zero, &AdapterError{Message: fmt.Sprintf("%q must be a number", name)}
		}
	}

	var result PaginatedResult[T]
	if err := json.Unmarshal(body, &result); err != nil {
		return zero, &AdapterError{Message: "decoding envelope", Err: err}
	}
	return result, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}

// FieldAdapter maps an arbitrary JSON envelope onto a PaginatedResult.
// Each field is a dotted path into the response body, e.g. "meta.total".
// Empty paths use the canonical names; Page, Limit and TotalPages may be
// absent from the body, in which case Load fills them in from the state.
type FieldAdapter[T any] struct {
	Items      string
	Total      string
	Page       string
	Limit      string
	TotalPages string
}

// Adapt implements ResponseAdapter.
func (a FieldAdapter[T]) Adapt(body []byte) (PaginatedResult[T], error) {
	var zero PaginatedResult[T]

	var root any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&root); err != nil {
		return zero, &AdapterError{Message: "body is not JSON", Err: err}
	}

	itemsPath := pathOr(a.Items, "data")
	itemsRaw, ok := lookup(root, itemsPath)
	if !ok {
		return zero, &AdapterError{Message: fmt.Sprintf("missing %q", itemsPath)}
	}
	if _, isList := itemsRaw.([]any); !isList {
		return zero, &AdapterError{Message: fmt.Sprintf("%q must be an array", itemsPath)}
	}
	// Round trip through JSON so T's own decoding rules apply.
	itemsJSON, err := json.Marshal(itemsRaw)
	if err != nil {
		return zero, &AdapterError{Message: "re-encoding items", Err: err}
	}
	var items []T
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return zero, &AdapterError{Message: fmt.Sprintf("decoding %q", itemsPath), Err: err}
	}

	totalPath := pathOr(a.Total, "total")
	total, ok, err := intAt(root, totalPath)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, &AdapterError{Message: fmt.Sprintf("missing %q", totalPath)}
	}

	result := PaginatedResult[T]{Items: items, Total: total}
	if result.Page, _, err = intAt(root, pathOr(a.Page, "page")); err != nil {
		return zero, err
	}
	if result.Limit, _, err = intAt(root, pathOr(a.Limit, "limit")); err != nil {
		return zero, err
	}
	if result.TotalPages, _, err = intAt(root, pathOr(a.TotalPages, "totalPages")); err != nil {
		return zero, err
	}
	return result, nil
}

func pathOr(path, def string) string {
	if path == "" {
		return def
	}
	return path
}

func lookup(root any, path string) (any, bool) {
	cur := root
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func intAt(root any, path string) (int, bool, error) {
	v, ok := lookup(root, path)
	if !ok || v == nil {
		return 0, false, nil
	}
	n, isNum := v.(json.Number)
	if !isNum {
		return 0, false, &AdapterError{Message: fmt.Sprintf("%q must be a number", path)}
	}
	if i, err := n.Int64(); err == nil {
		return int(i), true, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false, &AdapterError{Message: fmt.Sprintf("%q must be a number", path), Err: err}
	}
	return int(f), true, nil
}
