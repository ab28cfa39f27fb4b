package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

// Status is the lifecycle state of an observed query.
type Status int

const (
	Idle    Status = iota // No key set yet
	Loading               // No data yet, fetch in progress
	Success               // Data available
	Error                 // Last fetch failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "loading":
		*s = Loading
	case "success":
		*s = Success
	case "error":
		*s = Error
	default:
		return fmt.Errorf("query: unknown status %q", text)
	}
	return nil
}

// Snapshot is an observer's state at one point in time. Data is nil
// unless Status is Success, and Err is nil unless Status is Error.
type Snapshot[T any] struct {
	Key       tablestate.Key
	Status    Status
	Data      *fetch.PaginatedResult[T]
	Err       error
	Fetching  bool
	UpdatedAt time.Time
}

// Observer follows one key at a time on behalf of one consumer.
// It is safe for concurrent use. Subscribers are called synchronously,
// in order, and must not call back into the observer.
type Observer[T any] struct {
	client *Client[T]

	mu      sync.Mutex
	key     tablestate.Key
	fn      QueryFunc[T]
	snap    Snapshot[T]
	seq     uint64
	cancel  context.CancelFunc
	changed chan struct{}
	version uint64
	closed  bool
	subs    map[int]func(Snapshot[T])
	nextSub int

	// notifyMu serializes delivery; delivered is the last version handed
	// to subscribers.
	notifyMu  sync.Mutex
	delivered uint64
}

func newObserver[T any](c *Client[T]) *Observer[T] {
	return &Observer[T]{
		client:  c,
		changed: make(chan struct{}),
		subs:    make(map[int]func(Snapshot[T])),
	}
}

// Snapshot returns the current state.
func (o *Observer[T]) Snapshot() Snapshot[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Key returns the key being observed, or nil before SetKey.
func (o *Observer[T]) Key() tablestate.Key {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

// SetKey switches the observer to key. Cached data for key is shown at
// once; a fetch runs unless that data is fresh. Setting the current key
// again does nothing.
func (o *Observer[T]) SetKey(key tablestate.Key, fn QueryFunc[T]) {
	if o.keep(key, fn) {
		return
	}
	// The store may be remote; read it before taking the lock.
	cached, hit := o.client.entry(key)

	o.mu.Lock()
	if o.closed || (o.key != nil && o.key.Equal(key)) {
		o.fn = fn
		o.mu.Unlock()
		return
	}

	if o.key != nil {
		o.client.release(o.key)
	}
	o.key = append(tablestate.Key(nil), key...)
	o.fn = fn
	o.client.retain(o.key)

	next := Snapshot[T]{Key: o.key, Status: Loading, Fetching: true}
	if hit {
		data := cached.Data
		next.Status = Success
		next.Data = &data
		next.UpdatedAt = cached.UpdatedAt
		next.Fetching = !o.client.fresh(cached)
	}

	var seq uint64
	var ctx context.Context
	if next.Fetching {
		seq, ctx = o.beginLocked()
	} else {
		o.endLocked()
	}
	version := o.setLocked(next)
	o.mu.Unlock()

	o.notify(next, version)
	if next.Fetching {
		go o.run(ctx, seq, key, fn, next.Status == Success)
	}
}

// keep updates fn and reports true when key is already observed or the
// observer is closed.
func (o *Observer[T]) keep(key tablestate.Key, fn QueryFunc[T]) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || (o.key != nil && o.key.Equal(key)) {
		o.fn = fn
		return true
	}
	return false
}

// Refetch reloads the current key, ignoring freshness. Data already shown
// stays visible while the fetch runs; an error state becomes Loading.
func (o *Observer[T]) Refetch() {
	o.mu.Lock()
	if o.closed || o.key == nil {
		o.mu.Unlock()
		return
	}
	next := o.snap
	next.Fetching = true
	if next.Status != Success {
		next = Snapshot[T]{Key: o.key, Status: Loading, Fetching: true}
	}
	key, fn := o.key, o.fn
	seq, ctx := o.beginLocked()
	version := o.setLocked(next)
	o.mu.Unlock()

	o.notify(next, version)
	go o.run(ctx, seq, key, fn, true)
}

// Subscribe registers fn for every state change and returns a function
// that removes it.
func (o *Observer[T]) Subscribe(fn func(Snapshot[T])) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Await blocks until no fetch is running and returns the snapshot.
func (o *Observer[T]) Await(ctx context.Context) (Snapshot[T], error) {
	for {
		o.mu.Lock()
		snap, changed := o.snap, o.changed
		o.mu.Unlock()

		if !snap.Fetching {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-changed:
		}
	}
}

// Close detaches the observer. Its key becomes eligible for eviction and
// in-flight results are dropped.
func (o *Observer[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.endLocked()
	if o.key != nil {
		o.client.release(o.key)
	}
	o.subs = make(map[int]func(Snapshot[T]))
	if o.snap.Fetching {
		o.snap.Fetching = false
		o.broadcastLocked()
	}
}

// beginLocked starts a new fetch generation, abandoning the previous one.
func (o *Observer[T]) beginLocked() (uint64, context.Context) {
	o.endLocked()
	o.seq++
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	return o.seq, ctx
}

// endLocked abandons the current fetch generation.
func (o *Observer[T]) endLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.seq++
}

func (o *Observer[T]) setLocked(s Snapshot[T]) uint64 {
	o.snap = s
	o.version++
	o.broadcastLocked()
	return o.version
}

func (o *Observer[T]) broadcastLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Observer[T]) run(ctx context.Context, seq uint64, key tablestate.Key, fn QueryFunc[T], force bool) {
	var (
		result fetch.PaginatedResult[T]
		err    error
	)
	if force {
		result, err = o.client.Refetch(ctx, key, fn)
	} else {
		result, err = o.client.Fetch(ctx, key, fn)
	}
	updated := o.client.settings.clock()
	if err == nil {
		if e, ok := o.client.entry(key); ok {
			updated = e.UpdatedAt
		}
	}

	o.mu.Lock()
	if o.closed || seq != o.seq {
		o.mu.Unlock()
		return
	}
	o.cancel = nil

	next := Snapshot[T]{Key: o.key}
	if err != nil {
		next.Status = Error
		next.Err = err
	} else {
		next.Status = Success
		next.Data = &result
		next.UpdatedAt = updated
	}
	version := o.setLocked(next)
	o.mu.Unlock()

	o.notify(next, version)
}

func (o *Observer[T]) notify(s Snapshot[T], version uint64) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	if version <= o.delivered {
		return
	}
	o.delivered = version

	o.mu.Lock()
	subs := make([]func(Snapshot[T]), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
