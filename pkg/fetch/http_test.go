package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vango-dev/datatable/pkg/tablestate"
)

func TestHTTPFetcherQuery(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[],"total":0,"page":1,"limit":10,"totalPages":0}`))
	}))
	defer srv.Close()

	s := tablestate.New(tablestate.Defaults{})
	s.Search = "bob"
	s.Filters["role"] = tablestate.Multi("Admin", "Editor")

	f := NewHTTPFetcher(srv.URL+"/api/users?tenant=acme", WithHeader("X-Api-Key", "secret"))
	if _, err := f.Fetch(context.Background(), s); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	req := <-seen
	gotQuery, gotHeader := req.URL.RawQuery, req.Header.Get("X-Api-Key")
	if want := "tenant=acme&page=1&limit=10&search=bob&role=Admin&role=Editor"; gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
	if gotHeader != "secret" {
		t.Errorf("X-Api-Key = %q", gotHeader)
	}
}

func TestHTTPFetcherCommaEncoding(t *testing.T) {
	s := tablestate.New(tablestate.Defaults{})
	s.Filters["role"] = tablestate.Multi("Admin", "Editor")
	s.Filters["status"] = tablestate.Scalar("active")

	f := NewHTTPFetcher("http://example.com/users", WithFilterEncoding(EncodingComma))
	got, err := f.URL(s)
	if err != nil {
		t.Fatal(err)
	}
	if want := "http://example.com/users?page=1&limit=10&role=Admin%2CEditor&status=active"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestHTTPFetcherBaseQuery(t *testing.T) {
	s := tablestate.New(tablestate.Defaults{})
	s.Page = 2
	s.Filters["role"] = tablestate.Scalar("Admin")

	tests := []struct {
		base string
		want string
	}{
		{"http://api.test/users?limit=5&page=9", "http://api.test/users?page=2&limit=10&role=Admin"},
		{"http://api.test/users?role=Viewer&tenant=acme", "http://api.test/users?tenant=acme&page=2&limit=10&role=Admin"},
		{"http://api.test/users?status=active", "http://api.test/users?status=active&page=2&limit=10&role=Admin"},
	}
	for _, tt := range tests {
		got, err := NewHTTPFetcher(tt.base).URL(s)
		if err != nil {
			t.Fatalf("URL() with base %q error = %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("URL() with base %q = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestHTTPFetcherStatusError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"json error", `{"error":"Failed to fetch users"}`, "Failed to fetch users"},
		{"problem", `{"title":"Too Many Requests","detail":"slow down"}`, "slow down"},
		{"plain", "database offline", "database offline"},
		{"html", "<html>oops</html>", "Internal Server Error"},
		{"empty", "", "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPFetcher(srv.URL).Fetch(context.Background(), tablestate.New(tablestate.Defaults{}))
			fe, ok := err.(*FetchError)
			if !ok {
				t.Fatalf("Fetch() error = %T %v, want *FetchError", err, err)
			}
			if fe.Status != http.StatusInternalServerError || fe.Message != tt.wantMsg {
				t.Errorf("FetchError = %+v", fe)
			}
		})
	}
}

func TestHTTPFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(url).Fetch(context.Background(), tablestate.New(tablestate.Defaults{}))
	if !IsFetchError(err) || !Retryable(err) {
		t.Fatalf("Fetch() error = %v, want retryable FetchError", err)
	}
}

func TestHTTPFetcherWithLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":1,"name":"Ada"}],"total":1,"page":1,"limit":10,"totalPages":1}`))
	}))
	defer srv.Close()

	r, err := Load[[]byte, user](context.Background(), NewHTTPFetcher(srv.URL), JSONAdapter[user](), tablestate.New(tablestate.Defaults{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.Items[0].Name != "Ada" {
		t.Errorf("Items = %+v", r.Items)
	}
}

func TestHTTPFetcherCircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, WithCircuitBreaker(gobreaker.Settings{
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}))
	s := tablestate.New(tablestate.Defaults{})

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), s); !IsFetchError(err) {
			t.Fatalf("call %d: error = %v", i, err)
		}
	}

	_, err := f.Fetch(context.Background(), s)
	fe, ok := err.(*FetchError)
	if !ok || fe.Status != http.StatusServiceUnavailable || !strings.Contains(fe.Error(), "backend unavailable") {
		t.Fatalf("open breaker error = %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("backend called %d times, want 2", n)
	}
}

func TestParseFilterEncoding(t *testing.T) {
	for in, want := range map[string]FilterEncoding{"": EncodingRepeat, "repeat": EncodingRepeat, "Comma": EncodingComma} {
		got, err := ParseFilterEncoding(in)
		if err != nil || got != want {
			t.Errorf("ParseFilterEncoding(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFilterEncoding("csv"); err == nil {
		t.Error("ParseFilterEncoding(csv) should fail")
	}
}
