package mockapi

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/vango-dev/datatable/pkg/tablestate"
)

// Filter keys understood by the users endpoint.
const (
	FilterRole           = "role"
	FilterStatus         = "status"
	FilterJoinedFrom     = "joinedDateFrom"
	FilterJoinedTo       = "joinedDateTo"
	FilterLastActiveFrom = "lastActiveDateFrom"
	FilterLastActiveTo   = "lastActiveDateTo"
)

// sortFields maps sort_by values to comparisons.
var sortFields = map[string]func(a, b User) int{
	"id":         func(a, b User) int { return cmp.Compare(a.ID, b.ID) },
	"name":       func(a, b User) int { return strings.Compare(a.Name, b.Name) },
	"email":      func(a, b User) int { return strings.Compare(a.Email, b.Email) },
	"role":       func(a, b User) int { return strings.Compare(a.Role, b.Role) },
	"status":     func(a, b User) int { return strings.Compare(a.Status, b.Status) },
	"joinedDate": func(a, b User) int { return strings.Compare(a.JoinedDate, b.JoinedDate) },
	"lastActive": func(a, b User) int { return strings.Compare(a.LastActive, b.LastActive) },
}

// Select applies search, filters and sorting to users and returns one
// page plus the number of matching users. users is not modified.
func Select(users []User, s tablestate.State) ([]User, int, error) {
	match, err := matcher(s)
	if err != nil {
		return nil, 0, err
	}

	var rows []User
	for _, u := range users {
		if match(u) {
			rows = append(rows, u)
		}
	}

	if s.SortBy != "" {
		compare, ok := sortFields[s.SortBy]
		if !ok {
			return nil, 0, fmt.Errorf("unknown sort field %q", s.SortBy)
		}
		if s.SortOrder == tablestate.SortDesc {
			asc := compare
			compare = func(a, b User) int { return asc(b, a) }
		}
		slices.SortStableFunc(rows, compare)
	}

	total := len(rows)
	start := min(s.Offset(), total)
	end := min(start+s.Limit, total)
	return rows[start:end], total, nil
}

func matcher(s tablestate.State) (func(User) bool, error) {
	var preds []func(User) bool

	if q := strings.ToLower(s.Search); q != "" {
		preds = append(preds, func(u User) bool {
			return strings.Contains(strings.ToLower(u.Name), q) ||
				strings.Contains(strings.ToLower(u.Email), q)
		})
	}
	if roles := values(s.Filters, FilterRole); len(roles) > 0 {
		preds = append(preds, func(u User) bool { return slices.Contains(roles, u.Role) })
	}
	if statuses := values(s.Filters, FilterStatus); len(statuses) > 0 {
		preds = append(preds, func(u User) bool { return slices.Contains(statuses, u.Status) })
	}

	ranges := []struct {
		key   string
		field func(User) string
		from  bool
	}{
		{FilterJoinedFrom, func(u User) string { return u.JoinedDate }, true},
		{FilterJoinedTo, func(u User) string { return u.JoinedDate }, false},
		{FilterLastActiveFrom, func(u User) string { return u.LastActive }, true},
		{FilterLastActiveTo, func(u User) string { return u.LastActive }, false},
	}
	for _, rg := range ranges {
		v, ok := s.Filters[rg.key]
		if !ok || v.IsEmpty() {
			continue
		}
		bound := v.String()
		if _, err := time.Parse(dateLayout, bound); err != nil {
			return nil, fmt.Errorf("%s must be a YYYY-MM-DD date, got %q", rg.key, bound)
		}
		field, from := rg.field, rg.from
		preds = append(preds, func(u User) bool {
			if from {
				return field(u) >= bound
			}
			return field(u) <= bound
		})
	}

	return func(u User) bool {
		for _, p := range preds {
			if !p(u) {
				return false
			}
		}
		return true
	}, nil
}

// values returns the filter's values, splitting comma-joined lists so
// both ?role=Admin&role=Editor and ?role=Admin,Editor work.
func values(f tablestate.Filters, key string) []string {
	v, ok := f[key]
	if !ok {
		return nil
	}
	var out []string
	for _, item := range v.Values() {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
