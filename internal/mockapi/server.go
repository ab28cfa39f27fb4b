package mockapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLatency delays every users response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) {
		s.latency = d
	}
}

// WithRateLimit allows n requests per minute per client IP. Zero
// disables limiting.
func WithRateLimit(n int) Option {
	return func(s *Server) {
		s.rateLimit = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// Server is a demo users backend.
type Server struct {
	users     []User
	latency   time.Duration
	rateLimit int
	logger    *slog.Logger
}

// New creates a server over users.
func New(users []User, opts ...Option) *Server {
	s := &Server{users: users}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "mockapi")
	}
	return s
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Route("/api", func(api chi.Router) {
		if s.rateLimit > 0 {
			api.Use(httprate.Limit(s.rateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					Problem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
				}),
			))
		}
		api.Get("/users", s.handleList)
		api.Get("/users/{id}", s.handleGet)
	})
}

// Handler returns a standalone router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	s.Mount(r)
	return r
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	state := tablestate.Decode(r.URL.Query(), tablestate.Defaults{})
	rows, total, err := Select(s.users, state)
	if err != nil {
		Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-r.Context().Done():
			return
		case <-timer.C:
		}
	}

	s.logger.Debug("users listed",
		"request_id", middleware.GetReqID(r.Context()),
		"page", state.Page,
		"limit", state.Limit,
		"total", total)
	JSON(w, http.StatusOK, fetch.NewPaginatedResult(rows, total, state.Page, state.Limit))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	for _, u := range s.users {
		if u.ID == id {
			JSON(w, http.StatusOK, u)
			return
		}
	}
	Problem(w, http.StatusNotFound, "Not Found", "no user with id "+strconv.Itoa(id))
}

// JSON writes data with status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem writes an RFC 7807 problem response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
