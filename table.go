package datatable

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/query"
	"github.com/vango-dev/datatable/pkg/tablestate"
	"github.com/vango-dev/datatable/pkg/urlparam"
)

// Table is one consumer's view of a server-driven table.
// It is safe for concurrent use.
type Table[R, T any] struct {
	config   tableConfig
	fetcher  fetch.Fetcher[R]
	adapter  fetch.ResponseAdapter[R, T]
	client   *query.Client[T]
	observer *query.Observer[T]
	nav      *urlparam.Navigator
	logger   *slog.Logger

	mu   sync.Mutex
	ctrl *urlparam.Controller
}

// New creates a table that loads pages with f and a through client.
// A nil adapter expects f to return canonical results; see fetch.Load.
func New[R, T any](client *query.Client[T], f fetch.Fetcher[R], a fetch.ResponseAdapter[R, T], opts ...Option) *Table[R, T] {
	cfg := defaultTableConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Table[R, T]{
		config:   cfg,
		fetcher:  f,
		adapter:  a,
		client:   client,
		observer: client.Observe(),
		logger:   cfg.logger,
		ctrl:     urlparam.New("", tablestate.New(cfg.defaults), cfg.defaults),
	}
	if t.logger == nil {
		t.logger = slog.Default().With("component", "datatable")
	}

	var navOpts []urlparam.NavigatorOption
	if cfg.searchDebounce > 0 {
		navOpts = append(navOpts, urlparam.Debounce(cfg.searchDebounce))
	}
	t.nav = urlparam.NewNavigator(t.navigated, navOpts...)
	return t
}

// Open loads the table from a URL such as "/users?page=2&role=Admin".
// Use it for the first request and for browser history navigation.
func (t *Table[R, T]) Open(rawURL string) {
	t.nav.Stop()
	ctrl := urlparam.Parse(rawURL, t.config.defaults)

	t.mu.Lock()
	t.ctrl = ctrl
	t.mu.Unlock()

	t.load(ctrl.State())
}

// Navigate applies a navigation request: the URL now reflects req, so
// the state is re-derived from it and the matching page is loaded.
func (t *Table[R, T]) Navigate(req urlparam.NavigationRequest) {
	t.mu.Lock()
	t.ctrl.Apply(req)
	s := t.ctrl.State()
	t.mu.Unlock()

	t.load(s)
}

// navigated publishes req to the sink before loading it, so a router
// sees the URL change ahead of any snapshot for the new state.
func (t *Table[R, T]) navigated(req urlparam.NavigationRequest) {
	if t.config.sink != nil {
		t.config.sink(req)
	}
	t.Navigate(req)
}

func (t *Table[R, T]) load(s tablestate.State) {
	key := tablestate.CacheKey(t.config.baseKey, s)
	t.observer.SetKey(key, func(ctx context.Context) (fetch.PaginatedResult[T], error) {
		return fetch.Load(ctx, t.fetcher, t.adapter, s)
	})
}

// dispatch derives a request from the current state and navigates to it.
// A push lands a pending debounced search first and is then derived from
// the state that search produced, so no typed search is lost.
func (t *Table[R, T]) dispatch(mutate func(*urlparam.Controller) urlparam.NavigationRequest) urlparam.NavigationRequest {
	t.mu.Lock()
	req := mutate(t.ctrl)
	t.mu.Unlock()

	if req.Mode == urlparam.ModePush && t.nav.Pending() {
		t.nav.Flush()
		t.mu.Lock()
		req = mutate(t.ctrl)
		t.mu.Unlock()
	}

	t.nav.Navigate(req)
	return req
}

// SetPage moves to page p.
func (t *Table[R, T]) SetPage(p int) urlparam.NavigationRequest {
	return t.dispatch(func(c *urlparam.Controller) urlparam.NavigationRequest { return c.SetPage(p) })
}

// SetLimit changes the page size and returns to the first page.
func (t *Table[R, T]) SetLimit(limit int) urlparam.NavigationRequest {
	return t.dispatch(func(c *urlparam.Controller) urlparam.NavigationRequest { return c.SetLimit(limit) })
}

// SetSearch changes the search text and returns to the first page. The
// navigation is debounced when WithSearchDebounce is set.
func (t *Table[R, T]) SetSearch(q string) urlparam.NavigationRequest {
	return t.dispatch(func(c *urlparam.Controller) urlparam.NavigationRequest { return c.SetSearch(q) })
}

// SetSorting sorts by field in order. An empty field clears sorting.
func (t *Table[R, T]) SetSorting(field string, order tablestate.SortOrder) urlparam.NavigationRequest {
	return t.dispatch(func(c *urlparam.Controller) urlparam.NavigationRequest { return c.SetSorting(field, order) })
}

// SetFilters replaces all filters and returns to the first page.
func (t *Table[R, T]) SetFilters(f tablestate.Filters) urlparam.NavigationRequest {
	return t.dispatch(func(c *urlparam.Controller) urlparam.NavigationRequest { return c.SetFilters(f) })
}

// ResetFilters clears search and filters and returns to the first page.
func (t *Table[R, T]) ResetFilters() urlparam.NavigationRequest {
	return t.dispatch(func(c *urlparam.Controller) urlparam.NavigationRequest { return c.ResetFilters() })
}

// Refresh reloads the current page, ignoring the cache.
func (t *Table[R, T]) Refresh() {
	t.observer.Refetch()
}

// FlushSearch publishes a pending debounced search immediately.
func (t *Table[R, T]) FlushSearch() {
	t.nav.Flush()
}

// State returns the current table state.
func (t *Table[R, T]) State() tablestate.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctrl.State()
}

// URL returns the path and query string for the current state.
func (t *Table[R, T]) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.ctrl.State()
	return urlparam.NavigationRequest{Path: t.ctrl.Path(), Query: tablestate.Encode(s), State: s}.URL()
}

// Snapshot returns the query state for the current page.
func (t *Table[R, T]) Snapshot() query.Snapshot[T] {
	return t.observer.Snapshot()
}

// Subscribe calls fn on every query state change.
func (t *Table[R, T]) Subscribe(fn func(query.Snapshot[T])) (unsubscribe func()) {
	return t.observer.Subscribe(fn)
}

// Await blocks until the current page has finished loading.
func (t *Table[R, T]) Await(ctx context.Context) (query.Snapshot[T], error) {
	return t.observer.Await(ctx)
}

// Close releases the table's cache hold and drops pending navigations.
func (t *Table[R, T]) Close() {
	t.nav.Stop()
	t.observer.Close()
}
