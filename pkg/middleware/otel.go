package middleware

import (
	"context"
	"errors"

	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/tablestate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for datatable fetches.
const defaultTracerName = "datatable"

// OTelConfig configures fetch tracing.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "datatable").
	TracerName string

	// TracerProvider resolves the tracer (default: the global provider).
	TracerProvider trace.TracerProvider

	// SpanName names every fetch span (default: "datatable.fetch").
	SpanName string

	// IncludeSearch records the search text as an attribute.
	// Search text is user input - disabled by default.
	IncludeSearch bool

	// AttributeExtractor adds custom attributes from the table state.
	AttributeExtractor func(s tablestate.State) []attribute.KeyValue
}

// OTelOption configures fetch tracing.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithSpanName sets the span name.
func WithSpanName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.SpanName = name
	}
}

// WithIncludeSearch enables recording the search text.
func WithIncludeSearch(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeSearch = include
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(s tablestate.State) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
		SpanName:   "datatable.fetch",
	}
}

// TracingFetcher wraps a Fetcher so every call runs in a client span
// carrying the table state.
type TracingFetcher[R any] struct {
	next   fetch.Fetcher[R]
	config OTelConfig
	tracer trace.Tracer
}

// OpenTelemetry wraps next with tracing.
//
// Example:
//
//	f := middleware.OpenTelemetry[[]byte](
//	    fetch.NewHTTPFetcher("https://api.example.com/users"),
//	    middleware.WithTracerName("users-table"),
//	)
//
// Configure the global tracer provider in main() before serving:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry[R any](next fetch.Fetcher[R], opts ...OTelOption) *TracingFetcher[R] {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingFetcher[R]{
		next:   next,
		config: config,
		tracer: tp.Tracer(config.TracerName),
	}
}

// Fetch implements fetch.Fetcher.
func (f *TracingFetcher[R]) Fetch(ctx context.Context, s tablestate.State) (R, error) {
	ctx, span := f.tracer.Start(ctx, f.config.SpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(f.attributes(s)...),
	)
	defer span.End()

	raw, err := f.next.Fetch(ctx, s)
	if err != nil {
		var fe *fetch.FetchError
		if errors.As(err, &fe) && fe.Status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", fe.Status))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return raw, err
	}
	span.SetStatus(codes.Ok, "")
	return raw, nil
}

func (f *TracingFetcher[R]) attributes(s tablestate.State) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int("datatable.page", s.Page),
		attribute.Int("datatable.limit", s.Limit),
	}
	if s.SortBy != "" {
		attrs = append(attrs,
			attribute.String("datatable.sort_by", s.SortBy),
			attribute.String("datatable.sort_order", string(s.SortOrder)),
		)
	}
	if keys := s.Filters.Keys(); len(keys) > 0 {
		attrs = append(attrs, attribute.StringSlice("datatable.filters", keys))
	}
	if s.Search != "" {
		if f.config.IncludeSearch {
			attrs = append(attrs, attribute.String("datatable.search", s.Search))
		} else {
			attrs = append(attrs, attribute.Bool("datatable.searching", true))
		}
	}
	if f.config.AttributeExtractor != nil {
		attrs = append(attrs, f.config.AttributeExtractor(s)...)
	}
	return attrs
}
