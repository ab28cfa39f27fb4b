package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	datatable "github.com/vango-dev/datatable"
	"github.com/vango-dev/datatable/internal/config"
	"github.com/vango-dev/datatable/internal/errors"
	"github.com/vango-dev/datatable/internal/mockapi"
	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/live"
	"github.com/vango-dev/datatable/pkg/middleware"
	"github.com/vango-dev/datatable/pkg/query"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

type serveOptions struct {
	configPath string
	addr       string
	backendURL string
	redisAddr  string
	latency    time.Duration
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo users API and live tables",
		Long: `Serve the bundled users API together with live table sessions.

Endpoints:
  GET /api/users      paginated users (mock backend)
  GET /users          table view model for the request URL
  GET /live           WebSocket live table session
  GET /metrics        Prometheus metrics
  GET /healthz        liveness

Settings come from datatable.json and DATATABLE_* environment
variables; flags override both.

Examples:
  datatable serve
  datatable serve --addr=:9000 --latency=300ms
  datatable serve --backend=https://api.example.com/users --redis=localhost:6379`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./datatable.json if present)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address")
	cmd.Flags().StringVar(&opts.backendURL, "backend", "", "Paginated API URL (default: the bundled mock)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis", "", "Redis address for a shared query cache")
	cmd.Flags().DurationVar(&opts.latency, "latency", -1, "Artificial mock API latency")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := config.Resolve(opts.configPath)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.backendURL != "" {
		cfg.Backend.URL = opts.backendURL
	}
	if opts.redisAddr != "" {
		cfg.Query.RedisAddr = opts.redisAddr
	}
	if opts.latency >= 0 {
		cfg.Mock.Latency = config.Duration(opts.latency)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	metrics := middleware.Prometheus()

	api := mockapi.New(mockapi.Generate(cfg.Mock.Users, uint64(cfg.Mock.Seed)),
		mockapi.WithLatency(cfg.Mock.Latency.Std()),
		mockapi.WithRateLimit(cfg.Mock.RateLimit),
		mockapi.WithLogger(logger.With("component", "mockapi")),
	)

	retryDelay := query.ExponentialDelay(cfg.Query.RetryDelay.Std(), 30*time.Second)
	clientOpts := []query.Option{
		query.StaleTime(cfg.Query.StaleTime.Std()),
		query.GCTime(cfg.Query.GCTime.Std()),
		query.Retry(cfg.Query.Retry),
		query.RetryDelay(retryDelay),
		query.WithHooks(metrics.Hooks()),
		query.WithLogger(logger.With("component", "query")),
	}
	if cfg.Query.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Query.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.New(errors.CodeConfigInvalid).
				WithDetail("Redis is unreachable at " + cfg.Query.RedisAddr).
				WithSuggestion("Start Redis or remove query.redisAddr").
				Wrap(err)
		}
		store := query.NewRedisStore[mockapi.User](rdb, query.DefaultRedisPrefix, cfg.Query.GCTime.Std())
		clientOpts = append(clientOpts, query.WithStore[mockapi.User](store))
	}
	client := query.NewClient[mockapi.User](clientOpts...)
	go client.Run(ctx)

	backend := cfg.Backend.URL
	if backend == "" {
		backend = localURL(cfg.Server.Addr) + "/api/users"
	}
	encoding, err := fetch.ParseFilterEncoding(cfg.Backend.FilterEncoding)
	if err != nil {
		return errors.New(errors.CodeConfigInvalid).Wrap(err)
	}
	var fetcher fetch.Fetcher[[]byte] = middleware.OpenTelemetry[[]byte](fetch.NewHTTPFetcher(backend,
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout.Std()}),
		fetch.WithFilterEncoding(encoding),
		fetch.WithCircuitBreaker(gobreaker.Settings{
			Name:    "backend",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("backend circuit changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	))
	adapter := fetch.JSONAdapter[mockapi.User]()

	tableOpts := []datatable.Option{
		datatable.WithBaseKey(cfg.Table.BaseKey),
		datatable.WithDefaults(tablestate.Defaults{Limit: cfg.Table.DefaultLimit}),
		datatable.WithPageSizeOptions(cfg.Table.PageSizeOptions...),
		datatable.WithSearchDebounce(cfg.Table.SearchDebounce.Std()),
	}
	liveHandler := live.NewHandler(client, fetcher, adapter,
		live.WithPagePath("/users"),
		live.WithTableOptions(tableOpts...),
		live.WithSessionRecorder(metrics),
		live.WithLogger(logger.With("component", "live")),
	)

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	api.Mount(r)
	r.Get("/users", viewHandler(client, fetcher, adapter, tableOpts,
		waitBudget(cfg.Backend.Timeout.Std(), cfg.Query.Retry, retryDelay)))
	r.Handle("/live", liveHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("serving", "addr", cfg.Server.Addr, "backend", backend, "redis", cfg.Query.RedisAddr != "")

	select {
	case err := <-errCh:
		if !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	liveHandler.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// viewSlack covers adapting and caching after the last attempt.
const viewSlack = time.Second

// waitBudget is how long a view request waits for a page: every attempt
// may use the full per-request timeout, plus the delays between them.
// A zero timeout means no bound.
func waitBudget(timeout time.Duration, retry int, delay func(attempt int) time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	budget := timeout*time.Duration(retry+1) + viewSlack
	for attempt := 0; attempt < retry; attempt++ {
		budget += delay(attempt)
	}
	return budget
}

// viewHandler renders the table view model for the request URL, the
// server-side counterpart of a live session's first frame. wait bounds
// the whole load including retries; see waitBudget.
func viewHandler[R, T any](client *query.Client[T], f fetch.Fetcher[R], a fetch.ResponseAdapter[R, T], opts []datatable.Option, wait time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := datatable.New(client, f, a, opts...)
		defer t.Close()

		t.Open(r.URL.RequestURI())

		ctx := r.Context()
		if wait > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, wait)
			defer cancel()
		}
		snap, err := t.Await(ctx)
		if err != nil {
			mockapi.Problem(w, http.StatusGatewayTimeout, "Timeout", "the backend did not answer in time")
			return
		}

		status := http.StatusOK
		if snap.Status == query.Error {
			status = http.StatusBadGateway
			slog.Default().Warn("table view failed", "url", r.URL.RequestURI(), "error", snap.Err)
		}
		mockapi.JSON(w, status, t.ViewOf(snap))
	}
}

// localURL returns an http URL reaching a listen address from this host.
func localURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
