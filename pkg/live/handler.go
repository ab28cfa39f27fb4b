package live

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	datatable "github.com/vango-dev/datatable"
	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/query"
)

// Default connection timings.
const (
	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultReadLimit    = 64 * 1024
)

// SessionRecorder is told when sessions open and close.
type SessionRecorder interface {
	SessionOpened()
	SessionClosed()
}

type handlerConfig struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration
	readLimit    int64
	checkOrigin  func(*http.Request) bool
	pagePath     string
	tableOpts    []datatable.Option
	recorder     SessionRecorder
	logger       *slog.Logger
}

// Option configures a Handler.
type Option func(*handlerConfig)

// WithTimeouts sets the read and write deadlines. The read deadline is
// extended by every message and pong, so it must exceed the ping interval.
func WithTimeouts(read, write time.Duration) Option {
	return func(c *handlerConfig) {
		if read > 0 {
			c.readTimeout = read
		}
		if write > 0 {
			c.writeTimeout = write
		}
	}
}

// WithPingInterval sets how often the server pings the browser.
func WithPingInterval(d time.Duration) Option {
	return func(c *handlerConfig) {
		c.pingInterval = d
	}
}

// WithCheckOrigin sets the upgrade origin check. The default accepts
// same-origin requests only.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *handlerConfig) {
		c.checkOrigin = fn
	}
}

// WithPagePath sets the path used in navigate frames, e.g. "/users".
// The default is the WebSocket request path.
func WithPagePath(path string) Option {
	return func(c *handlerConfig) {
		c.pagePath = path
	}
}

// WithTableOptions sets options for every session's table.
func WithTableOptions(opts ...datatable.Option) Option {
	return func(c *handlerConfig) {
		c.tableOpts = append(c.tableOpts, opts...)
	}
}

// WithSessionRecorder reports session open and close, e.g. to
// middleware.QueryMetrics.
func WithSessionRecorder(r SessionRecorder) Option {
	return func(c *handlerConfig) {
		c.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *handlerConfig) {
		c.logger = l
	}
}

// Handler upgrades requests to live table sessions. All sessions share
// one query client, so they share cached pages.
type Handler[R, T any] struct {
	client   *query.Client[T]
	fetcher  fetch.Fetcher[R]
	adapter  fetch.ResponseAdapter[R, T]
	config   handlerConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session[R, T]
}

// NewHandler creates a handler that loads pages with f and a through
// client.
func NewHandler[R, T any](client *query.Client[T], f fetch.Fetcher[R], a fetch.ResponseAdapter[R, T], opts ...Option) *Handler[R, T] {
	config := handlerConfig{
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		pingInterval: DefaultPingInterval,
		readLimit:    DefaultReadLimit,
	}
	for _, opt := range opts {
		opt(&config)
	}

	h := &Handler[R, T]{
		client:   client,
		fetcher:  f,
		adapter:  a,
		config:   config,
		logger:   config.logger,
		sessions: make(map[string]*session[R, T]),
	}
	if h.logger == nil {
		h.logger = slog.Default().With("component", "live")
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     config.checkOrigin,
	}
	return h
}

// ServeHTTP runs one session until the connection closes.
func (h *Handler[R, T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Warn("upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	s := &session[R, T]{
		id:     id,
		conn:   conn,
		config: h.config,
		logger: h.logger.With("session_id", id),
		done:   make(chan struct{}),
	}
	opts := slices.Clone(h.config.tableOpts)
	opts = append(opts, datatable.WithNavigationSink(s.navigated), datatable.WithLogger(s.logger))
	s.table = datatable.New(h.client, h.fetcher, h.adapter, opts...)

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	if h.config.recorder != nil {
		h.config.recorder.SessionOpened()
	}

	pageURL := h.config.pagePath
	if pageURL == "" {
		pageURL = r.URL.Path
	}
	if r.URL.RawQuery != "" {
		pageURL += "?" + r.URL.RawQuery
	}

	s.logger.Info("live session opened", "url", pageURL)
	s.run(pageURL)

	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
	if h.config.recorder != nil {
		h.config.recorder.SessionClosed()
	}
	s.logger.Info("live session closed")
}

// SessionCount returns the number of open sessions.
func (h *Handler[R, T]) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close closes every open session.
func (h *Handler[R, T]) Close() {
	h.mu.Lock()
	sessions := make([]*session[R, T], 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close(websocket.CloseGoingAway, "server shutting down")
	}
}
