package datatable

import (
	"time"

	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/query"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

// DefaultErrorMessage is shown when a failed load carries no message.
const DefaultErrorMessage = "An error occurred while fetching data"

// ViewModel is a render-ready projection of a table: current state,
// rows, pagination numbers and load status.
type ViewModel[T any] struct {
	State tablestate.State `json:"state"`
	URL   string           `json:"url"`

	Status   query.Status `json:"status"`
	Loading  bool         `json:"loading"`
	Fetching bool         `json:"fetching"`

	Items []T `json:"items"`
	Empty bool `json:"empty"`

	Total       int  `json:"total"`
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalPages  int  `json:"totalPages"`
	FirstRecord int  `json:"firstRecord"`
	LastRecord  int  `json:"lastRecord"`
	CanPrev     bool `json:"canPrev"`
	CanNext     bool `json:"canNext"`

	PageSizeOptions []int `json:"pageSizeOptions"`

	Error    string `json:"error,omitempty"`
	CanRetry bool   `json:"canRetry"`

	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// ViewModel returns the current view of the table.
func (t *Table[R, T]) ViewModel() ViewModel[T] {
	t.mu.Lock()
	s := t.ctrl.State()
	t.mu.Unlock()

	return NewViewModel(s, t.URL(), t.Snapshot(), t.config.pageSizeOptions)
}

// ViewOf projects snap against the table's current state. Subscribe
// callbacks use it so the view matches the delivered snapshot.
func (t *Table[R, T]) ViewOf(snap query.Snapshot[T]) ViewModel[T] {
	return NewViewModel(t.State(), t.URL(), snap, t.config.pageSizeOptions)
}

// NewViewModel projects a state and a query snapshot. Pagination numbers
// follow the state, so they change as soon as the user navigates even
// while the new page is still loading.
func NewViewModel[T any](s tablestate.State, url string, snap query.Snapshot[T], pageSizes []int) ViewModel[T] {
	vm := ViewModel[T]{
		State:           s,
		URL:             url,
		Status:          snap.Status,
		Loading:         snap.Status == query.Loading,
		Fetching:        snap.Fetching,
		Items:           []T{},
		Page:            s.Page,
		Limit:           s.Limit,
		PageSizeOptions: pageSizes,
		UpdatedAt:       snap.UpdatedAt,
	}

	if snap.Data != nil {
		vm.Items = snap.Data.Items
		vm.Total = snap.Data.Total
	}
	if snap.Status == query.Error {
		vm.Error = DefaultErrorMessage
		if snap.Err != nil && snap.Err.Error() != "" {
			vm.Error = snap.Err.Error()
		}
		vm.CanRetry = true
	}

	pages := fetch.TotalPages(vm.Total, vm.Limit)
	vm.TotalPages = max(1, pages)
	vm.CanPrev = vm.Page > 1
	vm.CanNext = vm.Page < pages
	if vm.Total > 0 {
		vm.FirstRecord = (vm.Page-1)*vm.Limit + 1
		vm.LastRecord = min(vm.Page*vm.Limit, vm.Total)
	}
	vm.Empty = snap.Status == query.Success && len(vm.Items) == 0
	return vm
}
