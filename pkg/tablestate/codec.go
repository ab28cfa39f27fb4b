package tablestate

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Report lists the parameters Decode replaced with a default because
// their value was malformed. Missing parameters are not reported.
type Report struct {
	Defaulted []string
}

// Decode derives a State from query values. It never fails: malformed or
// missing page and limit values fall back to d, and an unknown sort order
// is treated as unset.
func Decode(values url.Values, d Defaults) State {
	s, _ := DecodeWithReport(values, d)
	return s
}

// DecodeQuery parses a raw query string (with or without a leading '?')
// and decodes it. Pairs with invalid escapes are skipped.
func DecodeQuery(rawQuery string, d Defaults) State {
	values, _ := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	return Decode(values, d)
}

// DecodeWithReport is Decode plus the list of defaulted parameters.
func DecodeWithReport(values url.Values, d Defaults) (State, Report) {
	var report Report
	s := New(d)

	if raw, ok := first(values, ParamPage); ok {
		if n, ok := positiveInt(raw); ok {
			s.Page = n
		} else {
			report.Defaulted = append(report.Defaulted, ParamPage)
		}
	}
	if raw, ok := first(values, ParamLimit); ok {
		if n, ok := positiveInt(raw); ok {
			s.Limit = n
		} else {
			report.Defaulted = append(report.Defaulted, ParamLimit)
		}
	}

	s.Search = values.Get(ParamSearch)
	s.SortBy = values.Get(ParamSortBy)
	if raw, ok := first(values, ParamSortOrder); ok && raw != "" {
		if order, ok := ParseSortOrder(raw); ok {
			s.SortOrder = order
		} else {
			report.Defaulted = append(report.Defaulted, ParamSortOrder)
		}
	}
	if s.SortBy == "" {
		s.SortOrder = SortNone
	}

	for key, vals := range values {
		if IsReserved(key) || len(vals) == 0 {
			continue
		}
		v := Scalar(vals[0])
		for _, extra := range vals[1:] {
			v = v.append(extra)
		}
		s.Filters[key] = v
	}

	return s, report
}

func first(values url.Values, key string) (string, bool) {
	vals, ok := values[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

func positiveInt(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Param is one key=value occurrence in an encoded query.
type Param struct {
	Key   string
	Value string
}

// Params returns the query parameters for s in emission order: page,
// limit, search, sort_by, sort_order, then filters by sorted key. Multi
// valued filters produce one Param per element.
func Params(s State) []Param {
	params := make([]Param, 0, 5+len(s.Filters))
	params = append(params,
		Param{ParamPage, strconv.Itoa(s.Page)},
		Param{ParamLimit, strconv.Itoa(s.Limit)},
	)
	if s.Search != "" {
		params = append(params, Param{ParamSearch, s.Search})
	}
	if s.SortBy != "" {
		params = append(params, Param{ParamSortBy, s.SortBy})
		if s.SortOrder != SortNone {
			params = append(params, Param{ParamSortOrder, string(s.SortOrder)})
		}
	}
	for _, key := range s.Filters.Keys() {
		if IsReserved(key) {
			continue
		}
		v := s.Filters[key]
		if v.IsMulti() {
			for _, item := range v.values {
				params = append(params, Param{key, item})
			}
			continue
		}
		if !v.IsEmpty() {
			params = append(params, Param{key, v.values[0]})
		}
	}
	return params
}

// Encode serializes s to a query string without a leading '?'.
// The output is deterministic for equal states.
func Encode(s State) string {
	return EncodeParams(Params(s))
}

// EncodeParams joins params into a query string, escaping keys and values.
func EncodeParams(params []Param) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// Key is a cache key derived from a state. Two states are cache
// equivalent iff their keys are element-wise equal.
type Key []string

// CacheKey returns
//
//	[baseKey, page, limit, search, sortBy, sortOrder, filtersJSON]
//
// Filters are serialized with sorted keys so insertion order never
// changes the key.
func CacheKey(baseKey string, s State) Key {
	return Key{
		baseKey,
		strconv.Itoa(s.Page),
		strconv.Itoa(s.Limit),
		s.Search,
		s.SortBy,
		string(s.SortOrder),
		filtersJSON(s.Filters),
	}
}

func filtersJSON(f Filters) string {
	if len(f) == 0 {
		return "{}"
	}
	// encoding/json writes map keys in sorted order.
	data, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// String returns a single string form of the key usable as a map key.
func (k Key) String() string {
	data, err := json.Marshal([]string(k))
	if err != nil {
		return strings.Join(k, "\x00")
	}
	return string(data)
}

// Base returns the first element of the key.
func (k Key) Base() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// Equal reports whether k and o match element-wise.
func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}
