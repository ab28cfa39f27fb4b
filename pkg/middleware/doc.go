// Package middleware provides observability for datatable query clients.
//
// This package includes:
//   - Prometheus metrics attached through query hooks
//   - An OpenTelemetry tracing wrapper for any Fetcher
//
// # Prometheus Metrics
//
// The metrics are labeled by table, which is the cache base key:
//   - datatable_fetches_total: Fetch attempts by outcome
//   - datatable_fetch_duration_seconds: Fetch attempt duration histogram
//   - datatable_fetch_retries_total: Retries
//   - datatable_cache_hits_total: Queries served from fresh cache
//   - datatable_cache_evictions_total: Idle entries collected
//   - datatable_live_sessions: Open live sessions
//
//	m := middleware.Prometheus()
//	client := query.NewClient[User](query.WithHooks(m.Hooks()))
//
// Then expose the metrics endpoint:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # OpenTelemetry Tracing
//
// OpenTelemetry wraps a Fetcher so each backend call runs in a client
// span carrying page, limit, sort and filter keys. The context passed to
// the wrapped fetcher carries the span, so an HTTP client instrumented
// with otelhttp continues the trace:
//
//	f := middleware.OpenTelemetry[[]byte](
//	    fetch.NewHTTPFetcher(backendURL),
//	    middleware.WithIncludeSearch(true),
//	)
package middleware
