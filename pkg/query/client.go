package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

// QueryFunc loads one page for a key.
type QueryFunc[T any] func(ctx context.Context) (fetch.PaginatedResult[T], error)

// usage tracks who holds a key so idle entries can be evicted.
type usage struct {
	key       tablestate.Key
	observers int
	lastUsed  time.Time
}

// Client is a shared result cache with per-key fetch de-duplication.
// It is safe for concurrent use.
type Client[T any] struct {
	settings settings
	store    Store[T]
	logger   *slog.Logger
	group    singleflight.Group

	mu    sync.Mutex
	usage map[string]*usage
}

// NewClient creates a client. It panics if WithStore was given a store
// for a different item type.
func NewClient[T any](opts ...Option) *Client[T] {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	c := &Client[T]{
		settings: s,
		usage:    make(map[string]*usage),
	}
	switch st := s.store.(type) {
	case nil:
		c.store = NewMemoryStore[T]()
	case Store[T]:
		c.store = st
	default:
		panic(fmt.Sprintf("query: store %T does not hold %T items", s.store, *new(T)))
	}
	c.logger = s.logger
	if c.logger == nil {
		c.logger = slog.Default().With("component", "query")
	}
	return c
}

// StaleTime returns the configured stale time.
func (c *Client[T]) StaleTime() time.Duration { return c.settings.staleTime }

// GCTime returns the configured eviction delay.
func (c *Client[T]) GCTime() time.Duration { return c.settings.gcTime }

// Fetch returns cached data for key if it is fresh, otherwise it loads it
// with fn. Concurrent calls for the same key share one load. Canceling
// ctx stops waiting but not the shared load, whose result is still
// cached.
func (c *Client[T]) Fetch(ctx context.Context, key tablestate.Key, fn QueryFunc[T]) (fetch.PaginatedResult[T], error) {
	k := key.String()
	c.touch(key, k)

	if e, ok := c.get(ctx, k); ok && c.fresh(e) {
		if h := c.settings.hooks.OnCacheHit; h != nil {
			h(key)
		}
		return e.Data, nil
	}
	return c.Refetch(ctx, key, fn)
}

// Refetch loads key with fn regardless of cached freshness, joining a
// load already in flight for the key.
func (c *Client[T]) Refetch(ctx context.Context, key tablestate.Key, fn QueryFunc[T]) (fetch.PaginatedResult[T], error) {
	k := key.String()
	c.touch(key, k)

	ch := c.group.DoChan(k, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), key, k, fn)
	})
	select {
	case <-ctx.Done():
		return fetch.PaginatedResult[T]{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("joined in-flight query", "key", k)
		}
		if res.Err != nil {
			return fetch.PaginatedResult[T]{}, res.Err
		}
		return res.Val.(fetch.PaginatedResult[T]), nil
	}
}

// load runs fn with retries and caches a success. After the last failed
// attempt the error surfaces as a *fetch.FetchError, or as the
// *fetch.AdapterError that stopped retrying.
func (c *Client[T]) load(ctx context.Context, key tablestate.Key, k string, fn QueryFunc[T]) (fetch.PaginatedResult[T], error) {
	hooks := c.settings.hooks
	attempts := 1 + c.settings.retry

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.settings.retryDelay(attempt - 1)
			c.logger.Debug("retrying query", "key", k, "attempt", attempt, "delay", delay, "error", err)
			if hooks.OnRetry != nil {
				hooks.OnRetry(key, attempt, err)
			}
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return fetch.PaginatedResult[T]{}, ctx.Err()
				case <-timer.C:
				}
			}
		}

		start := time.Now()
		var result fetch.PaginatedResult[T]
		result, err = fn(ctx)
		if hooks.OnFetch != nil {
			hooks.OnFetch(key, time.Since(start), err)
		}
		if err == nil {
			c.put(ctx, k, Entry[T]{Data: result, UpdatedAt: c.settings.clock()})
			return result, nil
		}
		if !fetch.Retryable(err) {
			break
		}
	}

	err = fetch.AsFetchError(err)
	c.logger.Warn("query failed", "key", k, "error", err)
	return fetch.PaginatedResult[T]{}, err
}

// Peek returns cached data for key without fetching. stale reports
// whether a Fetch would reload it.
func (c *Client[T]) Peek(key tablestate.Key) (data fetch.PaginatedResult[T], stale, ok bool) {
	e, ok := c.get(context.Background(), key.String())
	if !ok {
		return data, false, false
	}
	return e.Data, !c.fresh(e), true
}

// entry returns the cached entry for key.
func (c *Client[T]) entry(key tablestate.Key) (Entry[T], bool) {
	return c.get(context.Background(), key.String())
}

// Invalidate marks key stale so the next Fetch reloads it. Cached data
// stays available to Peek.
func (c *Client[T]) Invalidate(key tablestate.Key) {
	ctx := context.Background()
	k := key.String()
	e, ok := c.get(ctx, k)
	if !ok {
		return
	}
	e.Invalidated = true
	c.put(ctx, k, e)
}

// InvalidateAll marks every key this client has used stale.
func (c *Client[T]) InvalidateAll() {
	c.mu.Lock()
	keys := make([]tablestate.Key, 0, len(c.usage))
	for _, u := range c.usage {
		keys = append(keys, u.key)
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.Invalidate(key)
	}
}

// Remove drops key from the cache.
func (c *Client[T]) Remove(key tablestate.Key) {
	k := key.String()
	if err := c.store.Delete(context.Background(), k); err != nil {
		c.logger.Warn("cache delete failed", "key", k, "error", err)
	}
	c.mu.Lock()
	delete(c.usage, k)
	c.mu.Unlock()
}

// Collect evicts entries that no observer holds and that have not been
// used for GCTime. It returns the number of evicted entries.
func (c *Client[T]) Collect() int {
	now := c.settings.clock()

	c.mu.Lock()
	var idle []*usage
	for k, u := range c.usage {
		if u.observers == 0 && now.Sub(u.lastUsed) >= c.settings.gcTime {
			idle = append(idle, u)
			delete(c.usage, k)
		}
	}
	c.mu.Unlock()

	for _, u := range idle {
		k := u.key.String()
		if err := c.store.Delete(context.Background(), k); err != nil {
			c.logger.Warn("cache delete failed", "key", k, "error", err)
		}
		if h := c.settings.hooks.OnEvict; h != nil {
			h(u.key)
		}
	}
	if len(idle) > 0 {
		c.logger.Debug("evicted idle queries", "count", len(idle))
	}
	return len(idle)
}

// Run calls Collect every GCTime/2 until ctx is done.
func (c *Client[T]) Run(ctx context.Context) {
	interval := c.settings.gcTime / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Observe creates an observer bound to this client.
func (c *Client[T]) Observe() *Observer[T] {
	return newObserver(c)
}

func (c *Client[T]) fresh(e Entry[T]) bool {
	return !e.Invalidated && c.settings.clock().Sub(e.UpdatedAt) < c.settings.staleTime
}

func (c *Client[T]) get(ctx context.Context, k string) (Entry[T], bool) {
	e, ok, err := c.store.Get(ctx, k)
	if err != nil {
		c.logger.Warn("cache read failed", "key", k, "error", err)
		return e, false
	}
	return e, ok
}

func (c *Client[T]) put(ctx context.Context, k string, e Entry[T]) {
	if err := c.store.Set(ctx, k, e); err != nil {
		c.logger.Warn("cache write failed", "key", k, "error", err)
	}
}

func (c *Client[T]) touch(key tablestate.Key, k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.usage[k]
	if u == nil {
		u = &usage{key: append(tablestate.Key(nil), key...)}
		c.usage[k] = u
	}
	u.lastUsed = c.settings.clock()
}

func (c *Client[T]) retain(key tablestate.Key) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.usage[k]
	if u == nil {
		u = &usage{key: append(tablestate.Key(nil), key...)}
		c.usage[k] = u
	}
	u.observers++
	u.lastUsed = c.settings.clock()
}

func (c *Client[T]) release(key tablestate.Key) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if u := c.usage[k]; u != nil {
		u.observers = max(0, u.observers-1)
		u.lastUsed = c.settings.clock()
	}
}
