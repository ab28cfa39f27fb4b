package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testKey(page int) tablestate.Key {
	s := tablestate.New(tablestate.Defaults{})
	s.Page = page
	return tablestate.CacheKey("users", s)
}

// countingQuery returns page results and counts calls.
func countingQuery(calls *atomic.Int32, name string) QueryFunc[user] {
	return func(context.Context) (fetch.PaginatedResult[user], error) {
		n := calls.Add(1)
		return fetch.NewPaginatedResult([]user{{ID: int(n), Name: name}}, 1, 1, 10), nil
	}
}

func TestFetchServesFreshCache(t *testing.T) {
	clock := newFakeClock()
	var hits atomic.Int32
	c := NewClient[user](
		StaleTime(30*time.Second),
		WithClock(clock.Now),
		WithHooks(Hooks{OnCacheHit: func(tablestate.Key) { hits.Add(1) }}),
	)
	var calls atomic.Int32
	fn := countingQuery(&calls, "ada")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(ctx, testKey(1), fn); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if calls.Load() != 1 || hits.Load() != 2 {
		t.Fatalf("calls = %d hits = %d, want 1 and 2", calls.Load(), hits.Load())
	}

	clock.Advance(30 * time.Second)
	r, err := c.Fetch(ctx, testKey(1), fn)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 || r.Items[0].ID != 2 {
		t.Errorf("stale data not refetched: calls = %d, result = %+v", calls.Load(), r)
	}
}

func TestFetchZeroStaleTime(t *testing.T) {
	c := NewClient[user](StaleTime(0))
	var calls atomic.Int32
	fn := countingQuery(&calls, "ada")

	c.Fetch(context.Background(), testKey(1), fn)
	c.Fetch(context.Background(), testKey(1), fn)
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFetchDeduplicatesConcurrentCallers(t *testing.T) {
	c := NewClient[user](StaleTime(time.Hour))
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (fetch.PaginatedResult[user], error) {
		calls.Add(1)
		<-release
		return fetch.NewPaginatedResult([]user{{ID: 1}}, 1, 1, 10), nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Fetch(context.Background(), testKey(1), fn)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchRetriesThenSurfacesFetchError(t *testing.T) {
	var retries []int
	var mu sync.Mutex
	c := NewClient[user](
		Retry(2),
		RetryDelay(ConstantDelay(0)),
		WithHooks(Hooks{OnRetry: func(_ tablestate.Key, attempt int, _ error) {
			mu.Lock()
			retries = append(retries, attempt)
			mu.Unlock()
		}}),
	)
	var calls atomic.Int32
	fn := func(context.Context) (fetch.PaginatedResult[user], error) {
		n := calls.Add(1)
		return fetch.PaginatedResult[user]{}, fmt.Errorf("attempt %d failed", n)
	}

	_, err := c.Fetch(context.Background(), testKey(1), fn)

	var fe *fetch.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch() error = %T %v, want *fetch.FetchError", err, err)
	}
	if fe.Error() != "attempt 3 failed" {
		t.Errorf("error = %q, want the final attempt's message", fe.Error())
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retries)
	}
	if _, _, ok := c.Peek(testKey(1)); ok {
		t.Error("failed fetch was cached")
	}
}

func TestFetchRecoversOnRetry(t *testing.T) {
	c := NewClient[user](Retry(2), RetryDelay(ConstantDelay(time.Millisecond)))
	var calls atomic.Int32
	fn := func(context.Context) (fetch.PaginatedResult[user], error) {
		if calls.Add(1) == 1 {
			return fetch.PaginatedResult[user]{}, &fetch.FetchError{Status: 503}
		}
		return fetch.NewPaginatedResult([]user{{ID: 1}}, 1, 1, 10), nil
	}

	r, err := c.Fetch(context.Background(), testKey(1), fn)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if calls.Load() != 2 || len(r.Items) != 1 {
		t.Errorf("calls = %d result = %+v", calls.Load(), r)
	}
}

func TestFetchDoesNotRetryAdapterErrors(t *testing.T) {
	c := NewClient[user](Retry(2), RetryDelay(ConstantDelay(0)))
	var calls atomic.Int32
	fn := func(context.Context) (fetch.PaginatedResult[user], error) {
		calls.Add(1)
		return fetch.PaginatedResult[user]{}, &fetch.AdapterError{Message: "missing total"}
	}

	_, err := c.Fetch(context.Background(), testKey(1), fn)
	if !fetch.IsAdapterError(err) {
		t.Fatalf("Fetch() error = %v, want AdapterError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchCallerCancelKeepsSharedLoad(t *testing.T) {
	c := NewClient[user]()
	release := make(chan struct{})
	fn := func(context.Context) (fetch.PaginatedResult[user], error) {
		<-release
		return fetch.NewPaginatedResult([]user{{ID: 5}}, 1, 1, 10), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, testKey(1), fn)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}

	close(release)
	deadline := time.Now().Add(time.Second)
	for {
		if data, _, ok := c.Peek(testKey(1)); ok {
			if data.Items[0].ID != 5 {
				t.Errorf("cached = %+v", data)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned load was never cached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInvalidateAndRemove(t *testing.T) {
	c := NewClient[user](StaleTime(time.Hour))
	var calls atomic.Int32
	fn := countingQuery(&calls, "ada")
	ctx := context.Background()

	c.Fetch(ctx, testKey(1), fn)
	c.Invalidate(testKey(1))

	data, stale, ok := c.Peek(testKey(1))
	if !ok || !stale || data.Items[0].ID != 1 {
		t.Fatalf("Peek() after Invalidate = %+v stale=%v ok=%v", data, stale, ok)
	}

	c.Fetch(ctx, testKey(1), fn)
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if _, stale, _ := c.Peek(testKey(1)); stale {
		t.Error("refetched entry still stale")
	}

	c.Fetch(ctx, testKey(2), fn)
	c.InvalidateAll()
	for _, p := range []int{1, 2} {
		if _, stale, _ := c.Peek(testKey(p)); !stale {
			t.Errorf("page %d not invalidated", p)
		}
	}

	c.Remove(testKey(1))
	if _, _, ok := c.Peek(testKey(1)); ok {
		t.Error("Remove() left the entry")
	}
}

func TestCollectEvictsIdleEntries(t *testing.T) {
	clock := newFakeClock()
	var evicted []string
	c := NewClient[user](
		GCTime(5*time.Minute),
		WithClock(clock.Now),
		WithHooks(Hooks{OnEvict: func(k tablestate.Key) { evicted = append(evicted, k.String()) }}),
	)
	var calls atomic.Int32
	ctx := context.Background()

	c.Fetch(ctx, testKey(1), countingQuery(&calls, "a"))
	obs := c.Observe()
	obs.SetKey(testKey(2), countingQuery(&calls, "b"))
	if _, err := obs.Await(ctx); err != nil {
		t.Fatal(err)
	}

	clock.Advance(4 * time.Minute)
	if n := c.Collect(); n != 0 {
		t.Fatalf("Collect() = %d before GCTime", n)
	}

	clock.Advance(time.Minute)
	if n := c.Collect(); n != 1 {
		t.Fatalf("Collect() = %d, want 1", n)
	}
	if _, _, ok := c.Peek(testKey(1)); ok {
		t.Error("idle entry survived Collect")
	}
	if _, _, ok := c.Peek(testKey(2)); !ok {
		t.Error("observed entry was evicted")
	}
	if len(evicted) != 1 || evicted[0] != testKey(1).String() {
		t.Errorf("OnEvict keys = %v", evicted)
	}

	obs.Close()
	clock.Advance(5 * time.Minute)
	if n := c.Collect(); n != 1 {
		t.Errorf("Collect() after Close = %d, want 1", n)
	}
}

func TestRunCollectsPeriodically(t *testing.T) {
	store := NewMemoryStore[user]()
	c := NewClient[user](GCTime(20*time.Millisecond), WithStore[user](store))
	var calls atomic.Int32
	c.Fetch(context.Background(), testKey(1), countingQuery(&calls, "a"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run never evicted the idle entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExponentialDelay(t *testing.T) {
	delay := ExponentialDelay(time.Second, 30*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for attempt, w := range want {
		if got := delay(attempt); got != w {
			t.Errorf("delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestNewClientStoreMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewClient accepted a store for another item type")
		}
	}()
	NewClient[user](WithStore[int](NewMemoryStore[int]()))
}

func TestClientDefaults(t *testing.T) {
	c := NewClient[user]()
	if c.StaleTime() != DefaultStaleTime || c.GCTime() != DefaultGCTime || c.settings.retry != DefaultRetry {
		t.Errorf("defaults = %v %v %d", c.StaleTime(), c.GCTime(), c.settings.retry)
	}
}
