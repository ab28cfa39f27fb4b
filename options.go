package datatable

import (
	"log/slog"
	"time"

	"github.com/vango-dev/datatable/pkg/tablestate"
	"github.com/vango-dev/datatable/pkg/urlparam"
)

// DefaultBaseKey is the cache key namespace used when none is set.
const DefaultBaseKey = "server-table"

// DefaultPageSizeOptions are the page sizes offered when none are set.
var DefaultPageSizeOptions = []int{10, 20, 50, 100}

type tableConfig struct {
	baseKey         string
	defaults        tablestate.Defaults
	pageSizeOptions []int
	searchDebounce  time.Duration
	sink            func(urlparam.NavigationRequest)
	logger          *slog.Logger
}

func defaultTableConfig() tableConfig {
	return tableConfig{
		baseKey:         DefaultBaseKey,
		pageSizeOptions: DefaultPageSizeOptions,
	}
}

// Option configures a Table.
type Option func(*tableConfig)

// WithBaseKey sets the cache key namespace. Tables sharing a client and
// a base key share cached pages.
func WithBaseKey(key string) Option {
	return func(c *tableConfig) {
		if key != "" {
			c.baseKey = key
		}
	}
}

// WithDefaults sets the page and limit used when the URL omits them.
func WithDefaults(d tablestate.Defaults) Option {
	return func(c *tableConfig) {
		c.defaults = d
	}
}

// WithPageSizeOptions sets the page sizes offered to users.
func WithPageSizeOptions(sizes ...int) Option {
	return func(c *tableConfig) {
		if len(sizes) > 0 {
			c.pageSizeOptions = append([]int(nil), sizes...)
		}
	}
}

// WithSearchDebounce delays search navigations by d so typing produces
// one navigation.
func WithSearchDebounce(d time.Duration) Option {
	return func(c *tableConfig) {
		c.searchDebounce = d
	}
}

// WithNavigationSink receives every navigation request the table
// publishes, e.g. to update the browser address bar. It runs before the
// table loads the new state.
func WithNavigationSink(fn func(urlparam.NavigationRequest)) Option {
	return func(c *tableConfig) {
		c.sink = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *tableConfig) {
		c.logger = l
	}
}
