package fetch

import "testing"

func TestNewPaginatedResult(t *testing.T) {
	tests := []struct {
		total, limit int
		wantPages    int
		wantDisplay  int
	}{
		{0, 10, 0, 1},
		{1, 10, 1, 1},
		{10, 10, 1, 1},
		{11, 10, 2, 2},
		{95, 20, 5, 5},
		{100, 10, 10, 10},
	}

	for _, tt := range tests {
		r := NewPaginatedResult([]string{}, tt.total, 1, tt.limit)
		if r.TotalPages != tt.wantPages {
			t.Errorf("total=%d limit=%d: TotalPages = %d, want %d", tt.total, tt.limit, r.TotalPages, tt.wantPages)
		}
		if r.DisplayPages() != tt.wantDisplay {
			t.Errorf("total=%d limit=%d: DisplayPages = %d, want %d", tt.total, tt.limit, r.DisplayPages(), tt.wantDisplay)
		}
	}
}

func TestPaginatedResultNavigation(t *testing.T) {
	r := NewPaginatedResult([]int{1}, 30, 2, 10)
	if !r.HasPrev() || !r.HasNext() {
		t.Errorf("page 2 of 3: HasPrev=%v HasNext=%v", r.HasPrev(), r.HasNext())
	}
	r.Page = 3
	if r.HasNext() {
		t.Error("last page reports HasNext")
	}
}

func TestPaginatedResultValidate(t *testing.T) {
	tests := []struct {
		name string
		r    PaginatedResult[int]
		ok   bool
	}{
		{"valid", NewPaginatedResult([]int{1}, 1, 1, 10), true},
		{"negative total", PaginatedResult[int]{Total: -1, Page: 1, Limit: 10}, false},
		{"zero page", PaginatedResult[int]{Page: 0, Limit: 10}, false},
		{"zero limit", PaginatedResult[int]{Page: 1, Limit: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !IsAdapterError(err) {
				t.Errorf("Validate() error %T is not an AdapterError", err)
			}
		})
	}
}
