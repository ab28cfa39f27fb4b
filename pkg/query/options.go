package query

import (
	"log/slog"
	"time"

	"github.com/vango-dev/datatable/pkg/tablestate"
)

const (
	DefaultStaleTime = 30 * time.Second
	DefaultGCTime    = 5 * time.Minute
	DefaultRetry     = 2
)

// Hooks observe the client. Every field is optional.
type Hooks struct {
	// OnFetch runs after every fetch attempt.
	OnFetch func(key tablestate.Key, d time.Duration, err error)

	// OnRetry runs before a retry; attempt counts from 1.
	OnRetry func(key tablestate.Key, attempt int, err error)

	// OnCacheHit runs when fresh cached data is served without fetching.
	OnCacheHit func(key tablestate.Key)

	// OnEvict runs when Collect removes an idle entry.
	OnEvict func(key tablestate.Key)
}

type settings struct {
	staleTime  time.Duration
	gcTime     time.Duration
	retry      int
	retryDelay func(attempt int) time.Duration
	store      any
	logger     *slog.Logger
	hooks      Hooks
	clock      func() time.Time
}

func defaultSettings() settings {
	return settings{
		staleTime:  DefaultStaleTime,
		gcTime:     DefaultGCTime,
		retry:      DefaultRetry,
		retryDelay: ExponentialDelay(time.Second, 30*time.Second),
		clock:      time.Now,
	}
}

// Option configures a Client.
type Option func(*settings)

// StaleTime sets how long fetched data is served without refetching.
// Zero makes every Fetch go to the backend.
func StaleTime(d time.Duration) Option {
	return func(s *settings) {
		s.staleTime = d
	}
}

// GCTime sets how long an unobserved entry stays cached.
func GCTime(d time.Duration) Option {
	return func(s *settings) {
		s.gcTime = d
	}
}

// Retry sets how many times a failed fetch is retried.
func Retry(n int) Option {
	return func(s *settings) {
		s.retry = max(0, n)
	}
}

// RetryDelay sets the wait before retry attempt n (counting from 0).
func RetryDelay(fn func(attempt int) time.Duration) Option {
	return func(s *settings) {
		if fn != nil {
			s.retryDelay = fn
		}
	}
}

// ConstantDelay waits d before every retry.
func ConstantDelay(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// ExponentialDelay waits base, 2*base, 4*base, ... capped at limit.
func ExponentialDelay(base, limit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 0; i < attempt && d < limit; i++ {
			d *= 2
		}
		return min(d, limit)
	}
}

// WithStore sets where results are cached. The default is a MemoryStore.
func WithStore[T any](store Store[T]) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithHooks sets observation hooks.
func WithHooks(h Hooks) Option {
	return func(s *settings) {
		s.hooks = h
	}
}

// WithClock replaces time.Now for staleness and eviction decisions.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.clock = now
		}
	}
}
