package tablestate

import (
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestDecodeEmptyUsesDefaults(t *testing.T) {
	s := Decode(url.Values{}, Defaults{Limit: 10})

	if s.Page != 1 || s.Limit != 10 || s.Search != "" {
		t.Fatalf("Decode({}) = %+v, want page=1 limit=10 search=\"\"", s)
	}
	if s.SortBy != "" || s.SortOrder != SortNone {
		t.Errorf("sort = %q/%q, want unset", s.SortBy, s.SortOrder)
	}
	if s.Filters == nil || len(s.Filters) != 0 {
		t.Errorf("Filters = %#v, want empty non-nil map", s.Filters)
	}
}

func TestDecodeDefaults(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		defaults  Defaults
		wantPage  int
		wantLimit int
		defaulted []string
	}{
		{"zero defaults", "", Defaults{}, 1, 10, nil},
		{"custom limit", "", Defaults{Limit: 25}, 1, 25, nil},
		{"explicit values", "page=3&limit=50", Defaults{Limit: 25}, 3, 50, nil},
		{"malformed page", "page=abc&limit=20", Defaults{}, 1, 20, []string{"page"}},
		{"malformed limit", "page=2&limit=x", Defaults{Limit: 30}, 2, 30, []string{"limit"}},
		{"zero page", "page=0", Defaults{}, 1, 10, []string{"page"}},
		{"negative limit", "limit=-5", Defaults{}, 1, 10, []string{"limit"}},
		{"empty values", "page=&limit=", Defaults{}, 1, 10, []string{"page", "limit"}},
		{"first occurrence wins", "page=4&page=9", Defaults{}, 4, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, _ := url.ParseQuery(tt.query)
			s, report := DecodeWithReport(values, tt.defaults)
			if s.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", s.Page, tt.wantPage)
			}
			if s.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", s.Limit, tt.wantLimit)
			}
			if !reflect.DeepEqual(report.Defaulted, tt.defaulted) {
				t.Errorf("Defaulted = %v, want %v", report.Defaulted, tt.defaulted)
			}
		})
	}
}

func TestDecodeSortOrder(t *testing.T) {
	tests := []struct {
		query string
		want  SortOrder
	}{
		{"sort_by=name&sort_order=asc", SortAsc},
		{"sort_by=name&sort_order=DESC", SortDesc},
		{"sort_by=name&sort_order=sideways", SortNone},
		{"sort_by=name", SortNone},
		{"sort_order=asc", SortNone},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s := DecodeQuery(tt.query, Defaults{})
			if s.SortOrder != tt.want {
				t.Errorf("SortOrder = %q, want %q", s.SortOrder, tt.want)
			}
		})
	}
}

func TestDecodeFilters(t *testing.T) {
	s := DecodeQuery("?page=1&status=active&role=Admin&role=Editor&role=Viewer&search=x", Defaults{})

	if _, ok := s.Filters["search"]; ok {
		t.Fatal("reserved key leaked into filters")
	}
	status, ok := s.Filters["status"]
	if !ok || status.IsMulti() || status.String() != "active" {
		t.Errorf("status = %#v, want scalar active", status)
	}
	role := s.Filters["role"]
	if !role.IsMulti() {
		t.Fatalf("role should be multi-valued, got %#v", role)
	}
	if got := role.Values(); !reflect.DeepEqual(got, []string{"Admin", "Editor", "Viewer"}) {
		t.Errorf("role values = %v", got)
	}
	for key := range s.Filters {
		if IsReserved(key) {
			t.Errorf("filters contains reserved key %q", key)
		}
	}
}

func TestEncodeOrder(t *testing.T) {
	s := State{
		Page:      2,
		Limit:     20,
		Search:    "bob",
		SortBy:    "name",
		SortOrder: SortAsc,
		Filters:   Filters{"status": Scalar("active")},
	}

	got := Encode(s)
	want := "page=2&limit=20&search=bob&sort_by=name&sort_order=asc&status=active"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeOmitsEmpty(t *testing.T) {
	s := State{
		Page:      1,
		Limit:     10,
		SortOrder: SortDesc,
		Filters: Filters{
			"empty": Scalar(""),
			"none":  Multi(),
			"page":  Scalar("99"),
		},
	}

	if got := Encode(s); got != "page=1&limit=10" {
		t.Errorf("Encode() = %q, want %q", got, "page=1&limit=10")
	}
}

func TestEncodeEscapes(t *testing.T) {
	s := New(Defaults{})
	s.Search = "a&b c"
	s.Filters["tag name"] = Scalar("x=y")

	got := Encode(s)
	if !strings.Contains(got, "search=a%26b+c") {
		t.Errorf("search not escaped: %q", got)
	}
	if !strings.Contains(got, "tag+name=x%3Dy") {
		t.Errorf("filter not escaped: %q", got)
	}
}

func TestEncodeFilterKeysSorted(t *testing.T) {
	s := New(Defaults{})
	s.Filters["zeta"] = Scalar("1")
	s.Filters["alpha"] = Scalar("2")
	s.Filters["mid"] = Multi("b", "a")

	if got, want := Encode(s), "page=1&limit=10&alpha=2&mid=b&mid=a&zeta=1"; got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	states := []State{
		New(Defaults{}),
		{Page: 2, Limit: 20, Search: "bob", SortBy: "name", SortOrder: SortAsc, Filters: Filters{"status": Scalar("active")}},
		{Page: 7, Limit: 100, SortBy: "joinedDate", SortOrder: SortDesc, Filters: Filters{}},
		{Page: 1, Limit: 10, Search: "üñí code & more", Filters: Filters{"role": Multi("Admin", "Editor"), "q": Scalar("a b")}},
		{Page: 3, Limit: 5, SortBy: "email", Filters: Filters{"one": Multi("x", "y")}},
	}

	for _, s := range states {
		t.Run(Encode(s), func(t *testing.T) {
			got := DecodeQuery(Encode(s), Defaults{})
			if !got.Equal(s.Normalize()) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, s.Normalize())
			}
		})
	}
}

func TestRoundTripMultiValueOrder(t *testing.T) {
	s := New(Defaults{})
	s.Filters["role"] = Multi("Admin", "Editor")

	got := DecodeQuery(Encode(s), Defaults{}).Filters["role"]
	if !got.IsMulti() {
		t.Fatalf("role decoded as scalar: %#v", got)
	}
	if !reflect.DeepEqual(got.Values(), []string{"Admin", "Editor"}) {
		t.Errorf("role = %v, want [Admin Editor]", got.Values())
	}
}

func TestRoundTripIdempotent(t *testing.T) {
	s := State{Page: 0, Limit: -1, Search: "", SortOrder: SortAsc, Filters: Filters{"x": Scalar("")}}

	once := DecodeQuery(Encode(s), Defaults{})
	twice := DecodeQuery(Encode(once), Defaults{})
	if !once.Equal(twice) {
		t.Errorf("decode(encode) not idempotent: %+v vs %+v", once, twice)
	}
}

func TestCacheKey(t *testing.T) {
	s := State{Page: 2, Limit: 20, Search: "bob", SortBy: "name", SortOrder: SortAsc,
		Filters: Filters{"status": Scalar("active"), "role": Multi("Admin", "Editor")}}

	got := CacheKey("users", s)
	want := Key{"users", "2", "20", "bob", "name", "asc", `{"role":["Admin","Editor"],"status":"active"}`}
	if !got.Equal(want) {
		t.Errorf("CacheKey() = %v, want %v", got, want)
	}
	if got.Base() != "users" {
		t.Errorf("Base() = %q", got.Base())
	}
}

func TestCacheKeyIgnoresInsertionOrder(t *testing.T) {
	a := New(Defaults{})
	a.Filters["a"] = Scalar("1")
	a.Filters["b"] = Scalar("2")
	a.Filters["c"] = Multi("x", "y")

	b := New(Defaults{})
	b.Filters["c"] = Multi("x", "y")
	b.Filters["b"] = Scalar("2")
	b.Filters["a"] = Scalar("1")

	for i := 0; i < 20; i++ {
		if CacheKey("t", a).String() != CacheKey("t", b).String() {
			t.Fatal("cache keys differ for equal filter sets")
		}
	}
}

func TestCacheKeyEmptyFilters(t *testing.T) {
	var nilFilters State
	nilFilters.Page, nilFilters.Limit = 1, 10
	empty := New(Defaults{})

	if !CacheKey("t", nilFilters).Equal(CacheKey("t", empty)) {
		t.Error("nil and empty filters should share a cache key")
	}
	if got := CacheKey("t", empty)[6]; got != "{}" {
		t.Errorf("filters component = %q, want {}", got)
	}
}

func TestCacheKeyDistinguishesShape(t *testing.T) {
	scalar := New(Defaults{})
	scalar.Filters["role"] = Scalar("Admin")
	multi := New(Defaults{})
	multi.Filters["role"] = Multi("Admin")

	if CacheKey("t", scalar).Equal(CacheKey("t", multi)) {
		t.Error("scalar and single-element sequence should not share a key")
	}
}
