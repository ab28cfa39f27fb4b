package urlparam

import (
	"sync"
	"time"
)

// NavigatorOption configures a Navigator.
type NavigatorOption interface {
	applyNavigator(*navigatorConfig)
}

type navigatorConfig struct {
	debounce time.Duration
}

// debounceOption implements NavigatorOption.
type debounceOption struct {
	d time.Duration
}

func (o debounceOption) applyNavigator(c *navigatorConfig) {
	c.debounce = o.d
}

// Debounce delays replace-mode navigations by d. Use this for search
// inputs to avoid a navigation per keystroke: only the last request in a
// burst is published.
//
// Example:
//
//	nav := urlparam.NewNavigator(apply, urlparam.Debounce(300*time.Millisecond))
func Debounce(d time.Duration) NavigatorOption {
	return debounceOption{d: d}
}

// Navigator publishes navigation requests to a sink such as a router, a
// WebSocket session or a test recorder. Requests are published in the
// order they were submitted; a debounced request that is overtaken by a
// newer one is dropped.
type Navigator struct {
	sink   func(NavigationRequest)
	config navigatorConfig

	// Debounce timer
	timerMu sync.Mutex
	timer   *time.Timer
	pending *NavigationRequest
	seq     uint64

	// sinkMu serializes publication; published is the seq of the last
	// request handed to sink.
	sinkMu    sync.Mutex
	published uint64
}

// NewNavigator creates a navigator that hands every published request to
// sink.
func NewNavigator(sink func(NavigationRequest), opts ...NavigatorOption) *Navigator {
	n := &Navigator{sink: sink}
	for _, opt := range opts {
		opt.applyNavigator(&n.config)
	}
	return n
}

// Navigate publishes req, respecting debounce settings. A debounced
// request replaces the pending one. Push-mode requests are never
// delayed; a pending debounced request is published ahead of them.
func (n *Navigator) Navigate(req NavigationRequest) {
	if n == nil || n.sink == nil {
		return
	}

	debounced := n.config.debounce > 0 && req.Mode == ModeReplace

	n.timerMu.Lock()
	var flushed *NavigationRequest
	flushedSeq := n.seq
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if !debounced {
		flushed = n.pending
	}
	n.pending = nil
	n.seq++
	seq := n.seq

	if debounced {
		pending := req
		n.pending = &pending
		n.timer = time.AfterFunc(n.config.debounce, func() {
			n.fire(seq)
		})
		n.timerMu.Unlock()
		return
	}
	n.timerMu.Unlock()

	if flushed != nil {
		n.publish(*flushed, flushedSeq)
	}
	n.publish(req, seq)
}

// fire publishes the pending request when the debounce timer elapses.
func (n *Navigator) fire(seq uint64) {
	n.timerMu.Lock()
	if n.seq != seq || n.pending == nil {
		n.timerMu.Unlock()
		return
	}
	req := *n.pending
	n.pending = nil
	n.timer = nil
	n.timerMu.Unlock()

	n.publish(req, seq)
}

func (n *Navigator) publish(req NavigationRequest, seq uint64) {
	n.sinkMu.Lock()
	defer n.sinkMu.Unlock()
	if seq <= n.published {
		return
	}
	n.published = seq
	n.sink(req)
}

// Flush publishes a pending debounced request immediately.
func (n *Navigator) Flush() {
	if n == nil {
		return
	}
	n.timerMu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	req := n.pending
	seq := n.seq
	n.pending = nil
	n.timerMu.Unlock()

	if req != nil {
		n.publish(*req, seq)
	}
}

// Stop drops a pending debounced request.
func (n *Navigator) Stop() {
	if n == nil {
		return
	}
	n.timerMu.Lock()
	defer n.timerMu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.pending = nil
}

// Pending reports whether a debounced request is waiting.
func (n *Navigator) Pending() bool {
	if n == nil {
		return false
	}
	n.timerMu.Lock()
	defer n.timerMu.Unlock()
	return n.pending != nil
}
