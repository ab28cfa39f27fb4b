package live

import "github.com/vango-dev/datatable/pkg/tablestate"

// Op names a client action.
type Op string

const (
	OpSetPage      Op = "setPage"
	OpSetLimit     Op = "setLimit"
	OpSetSearch    Op = "setSearch"
	OpSetSorting   Op = "setSorting"
	OpSetFilters   Op = "setFilters"
	OpResetFilters Op = "resetFilters"
	OpRefresh      Op = "refresh"
	OpFlushSearch  Op = "flushSearch"
	OpOpen         Op = "open"
)

// Message is a client action.
type Message struct {
	Op        Op                 `json:"op"`
	Page      int                `json:"page,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Search    string             `json:"search,omitempty"`
	SortBy    string             `json:"sortBy,omitempty"`
	SortOrder string             `json:"sortOrder,omitempty"`
	Filters   tablestate.Filters `json:"filters,omitempty"`
	URL       string             `json:"url,omitempty"`
}

// FrameType identifies a server frame.
type FrameType string

const (
	FrameSession  FrameType = "session"
	FrameView     FrameType = "view"
	FrameNavigate FrameType = "navigate"
	FrameError    FrameType = "error"
)

// Frame is a server message. Only the fields for Type are set.
type Frame struct {
	Type FrameType `json:"type"`

	// Session
	ID string `json:"id,omitempty"`

	// Navigate
	URL  string `json:"url,omitempty"`
	Mode string `json:"mode,omitempty"`

	// View carries a datatable.ViewModel.
	View any `json:"view,omitempty"`

	// Error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}
