package tablestate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Reserved query parameter names.
const (
	ParamPage      = "page"
	ParamLimit     = "limit"
	ParamSearch    = "search"
	ParamSortBy    = "sort_by"
	ParamSortOrder = "sort_order"
)

// Default paging values used when neither the URL nor Defaults supply one.
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// IsReserved reports whether key is one of the named state parameters
// rather than a filter key.
func IsReserved(key string) bool {
	switch key {
	case ParamPage, ParamLimit, ParamSearch, ParamSortBy, ParamSortOrder:
		return true
	}
	return false
}

// SortOrder is the sort direction of a table.
type SortOrder string

const (
	// SortNone means no explicit direction.
	SortNone SortOrder = ""

	// SortAsc sorts ascending.
	SortAsc SortOrder = "asc"

	// SortDesc sorts descending.
	SortDesc SortOrder = "desc"
)

// ParseSortOrder parses s case-insensitively. Anything other than asc or
// desc yields SortNone and false.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return SortAsc, true
	case "desc":
		return SortDesc, true
	}
	return SortNone, false
}

// Valid reports whether o is SortAsc or SortDesc.
func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// FilterValue is a single filter value or an ordered sequence of values.
type FilterValue struct {
	values []string
	multi  bool
}

// Scalar returns a single-valued filter.
func Scalar(s string) FilterValue {
	return FilterValue{values: []string{s}}
}

// Multi returns a multi-valued filter. The order of vals is preserved.
func Multi(vals ...string) FilterValue {
	cp := make([]string, len(vals))
	copy(cp, vals)
	return FilterValue{values: cp, multi: true}
}

// IsMulti reports whether the value is a sequence.
func (v FilterValue) IsMulti() bool {
	return v.multi
}

// Values returns a copy of the underlying values in order.
func (v FilterValue) Values() []string {
	cp := make([]string, len(v.values))
	copy(cp, v.values)
	return cp
}

// String returns the scalar value, or the sequence joined by commas.
func (v FilterValue) String() string {
	return strings.Join(v.values, ",")
}

// IsEmpty reports whether the value would be omitted when encoded.
func (v FilterValue) IsEmpty() bool {
	if v.multi {
		return len(v.values) == 0
	}
	return len(v.values) == 0 || v.values[0] == ""
}

// Equal reports whether v and o have the same shape and values.
func (v FilterValue) Equal(o FilterValue) bool {
	if v.multi != o.multi || len(v.values) != len(o.values) {
		return false
	}
	for i := range v.values {
		if v.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

// append adds a value, promoting a scalar to a sequence.
func (v FilterValue) append(s string) FilterValue {
	vals := make([]string, len(v.values), len(v.values)+1)
	copy(vals, v.values)
	return FilterValue{values: append(vals, s), multi: true}
}

// MarshalJSON encodes a scalar as a JSON string and a sequence as an array.
func (v FilterValue) MarshalJSON() ([]byte, error) {
	if v.multi {
		if v.values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.values)
	}
	if len(v.values) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(v.values[0])
}

// UnmarshalJSON accepts a JSON string or an array of strings.
func (v *FilterValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Scalar(s)
		return nil
	}
	var vals []string
	if err := json.Unmarshal(data, &vals); err != nil {
		return fmt.Errorf("tablestate: filter value must be a string or string array: %w", err)
	}
	*v = Multi(vals...)
	return nil
}

// Filters maps filter keys to their values.
type Filters map[string]FilterValue

// Keys returns the filter keys in lexicographic order.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy. A nil map clones to an empty map.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = FilterValue{values: append([]string(nil), v.values...), multi: v.multi}
	}
	return out
}

// Equal reports whether f and o contain the same keys and values.
// Nil and empty maps are equal.
func (f Filters) Equal(o Filters) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// State is the canonical, URL-serializable description of a table view.
// It is a value: mutate a copy and encode it, never share one between
// goroutines by pointer.
type State struct {
	Page      int       `json:"page"`
	Limit     int       `json:"limit"`
	Search    string    `json:"search"`
	SortBy    string    `json:"sortBy,omitempty"`
	SortOrder SortOrder `json:"sortOrder,omitempty"`
	Filters   Filters   `json:"filters"`
}

// Defaults supplies fallback values for Decode.
// Zero fields fall back to DefaultPage and DefaultLimit.
type Defaults struct {
	Page  int
	Limit int
}

func (d Defaults) page() int {
	if d.Page >= 1 {
		return d.Page
	}
	return DefaultPage
}

func (d Defaults) limit() int {
	if d.Limit >= 1 {
		return d.Limit
	}
	return DefaultLimit
}

// New returns the default state for d.
func New(d Defaults) State {
	return State{
		Page:    d.page(),
		Limit:   d.limit(),
		Filters: Filters{},
	}
}

// Clone returns a copy of s that shares no storage with it.
func (s State) Clone() State {
	s.Filters = s.Filters.Clone()
	return s
}

// Normalize returns the canonical form of s: page and limit are at least
// 1, a sort order without a sort field is dropped, and filters that would
// not be encoded are removed.
func (s State) Normalize() State {
	out := s.Clone()
	if out.Page < 1 {
		out.Page = DefaultPage
	}
	if out.Limit < 1 {
		out.Limit = DefaultLimit
	}
	if out.SortBy == "" || !out.SortOrder.Valid() {
		out.SortOrder = SortNone
	}
	for k, v := range out.Filters {
		if v.IsEmpty() || IsReserved(k) {
			delete(out.Filters, k)
		}
	}
	return out
}

// Equal reports whether s and o describe the same view.
func (s State) Equal(o State) bool {
	return s.Page == o.Page &&
		s.Limit == o.Limit &&
		s.Search == o.Search &&
		s.SortBy == o.SortBy &&
		s.SortOrder == o.SortOrder &&
		s.Filters.Equal(o.Filters)
}

// Offset returns the zero-based index of the first row on the page.
func (s State) Offset() int {
	if s.Page < 1 || s.Limit < 1 {
		return 0
	}
	return (s.Page - 1) * s.Limit
}

// HasFilters reports whether a search or any filter is active.
func (s State) HasFilters() bool {
	if s.Search != "" {
		return true
	}
	for _, v := range s.Filters {
		if !v.IsEmpty() {
			return true
		}
	}
	return false
}
