// Package urlparam keeps table state synchronized with the URL.
//
// A Controller is a pure projection of the current URL. Every mutator
// computes the complete next state and returns it as a NavigationRequest;
// nothing is published until the caller hands the request to a Navigator
// (or its own router). This keeps the state logic testable without any
// routing mechanism.
//
// Example:
//
//	ctrl := urlparam.FromURL(r.URL, tablestate.Defaults{Limit: 10})
//
//	// Search input - replaces history, debounced by the navigator
//	req := ctrl.SetSearch("bob")
//	nav.Navigate(req)
//
//	// Page change - new history entry
//	nav.Navigate(ctrl.SetPage(3))
package urlparam

import (
	"net/url"

	"github.com/vango-dev/datatable/pkg/tablestate"
)

// URLMode determines how URL updates are applied to history.
type URLMode int

const (
	// ModePush adds a new history entry (default behavior).
	ModePush URLMode = iota

	// ModeReplace replaces the current history entry (no back button spam).
	ModeReplace
)

// String returns "push" or "replace".
func (m URLMode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "push"
}

// NavigationRequest is the command produced by a Controller mutator.
// It carries the fully encoded next state.
type NavigationRequest struct {
	Path  string
	Query string
	Mode  URLMode

	// State is the decoded form of Query.
	State tablestate.State
}

// URL returns path?query.
func (r NavigationRequest) URL() string {
	if r.Query == "" {
		return r.Path
	}
	return r.Path + "?" + r.Query
}

// Controller exposes the table mutators for one URL.
type Controller struct {
	path     string
	state    tablestate.State
	defaults tablestate.Defaults
}

// New returns a controller for path holding state.
func New(path string, state tablestate.State, defaults tablestate.Defaults) *Controller {
	return &Controller{
		path:     path,
		state:    state.Clone(),
		defaults: defaults,
	}
}

// FromURL decodes u's query into a controller.
func FromURL(u *url.URL, defaults tablestate.Defaults) *Controller {
	if u == nil {
		return New("", tablestate.New(defaults), defaults)
	}
	return New(u.Path, tablestate.Decode(u.Query(), defaults), defaults)
}

// Parse is FromURL for a raw URL string. An unparsable URL yields the
// default state with an empty path.
func Parse(rawURL string, defaults tablestate.Defaults) *Controller {
	u, err := url.Parse(rawURL)
	if err != nil {
		return New("", tablestate.New(defaults), defaults)
	}
	return FromURL(u, defaults)
}

// Path returns the URL path the controller navigates within.
func (c *Controller) Path() string {
	return c.path
}

// State returns a copy of the current state.
func (c *Controller) State() tablestate.State {
	return c.state.Clone()
}

// Defaults returns the decode defaults.
func (c *Controller) Defaults() tablestate.Defaults {
	return c.defaults
}

// Apply replaces the held state with the one a navigation published.
// Call this once the request has actually been applied to the URL.
func (c *Controller) Apply(req NavigationRequest) {
	if req.Path != "" {
		c.path = req.Path
	}
	c.state = tablestate.DecodeQuery(req.Query, c.defaults)
}

// SetPage changes only the page.
func (c *Controller) SetPage(page int) NavigationRequest {
	next := c.state.Clone()
	next.Page = page
	return c.request(next, ModePush)
}

// SetLimit changes the page size and resets to the first page, since the
// previous page offset no longer applies.
func (c *Controller) SetLimit(limit int) NavigationRequest {
	next := c.state.Clone()
	next.Limit = limit
	next.Page = 1
	return c.request(next, ModePush)
}

// SetSearch changes the search text and resets to the first page.
func (c *Controller) SetSearch(search string) NavigationRequest {
	next := c.state.Clone()
	next.Search = search
	next.Page = 1
	return c.request(next, ModeReplace)
}

// SetSorting changes the sort field and direction. The page is kept.
// An empty field clears sorting.
func (c *Controller) SetSorting(field string, order tablestate.SortOrder) NavigationRequest {
	next := c.state.Clone()
	next.SortBy = field
	next.SortOrder = order
	if field == "" {
		next.SortOrder = tablestate.SortNone
	}
	return c.request(next, ModePush)
}

// SetFilters replaces the whole filter map and resets to the first page.
func (c *Controller) SetFilters(filters tablestate.Filters) NavigationRequest {
	next := c.state.Clone()
	next.Filters = filters.Clone()
	next.Page = 1
	return c.request(next, ModePush)
}

// ResetFilters clears search and filters and resets to the first page.
// Sorting is left alone.
func (c *Controller) ResetFilters() NavigationRequest {
	next := c.state.Clone()
	next.Search = ""
	next.Filters = tablestate.Filters{}
	next.Page = 1
	return c.request(next, ModePush)
}

func (c *Controller) request(next tablestate.State, mode URLMode) NavigationRequest {
	query := tablestate.Encode(next)
	return NavigationRequest{
		Path:  c.path,
		Query: query,
		Mode:  mode,
		State: tablestate.DecodeQuery(query, c.defaults),
	}
}
