// Package tracehttp traces net/http clients and servers with tracez.
//
// Outbound requests made through Transport get a client span and carry its
// identity in traceparent/tracestate headers. Handlers wrapped by Middleware
// continue the caller's trace from those headers, or start a new one when
// they are missing or malformed.
package tracehttp

import (
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.6.1"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront/tracez"
)

// Option configures a Transport or Middleware.
type Option func(*config)

type config struct {
	spanName   func(*http.Request) string
	propagator tracez.TraceContext
}

func newConfig(opts []Option) config {
	cfg := config{spanName: defaultSpanName}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithSpanNameFormatter names spans from the request.
func WithSpanNameFormatter(fn func(*http.Request) string) Option {
	return func(c *config) {
		if fn != nil {
			c.spanName = fn
		}
	}
}

func defaultSpanName(r *http.Request) string {
	return "HTTP " + r.Method
}

// Transport is an http.RoundTripper that records a client span for every
// request and injects its span context into the request headers.
type Transport struct {
	base   http.RoundTripper
	tracer *tracez.Tracer
	cfg    config
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps base, http.DefaultTransport when nil.
func NewTransport(tracer *tracez.Tracer, base http.RoundTripper, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:   base,
		tracer: tracer,
		cfg:    newConfig(opts),
	}
}

// NewClient returns an http.Client whose requests are traced.
func NewClient(tracer *tracez.Tracer, opts ...Option) *http.Client {
	return &http.Client{Transport: NewTransport(tracer, nil, opts...)}
}

// RoundTrip starts a client span as a child of the request context, sends
// the request with trace headers and finishes the span when the response
// headers arrive. Transport errors and status >= 400 mark the span Error.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.StartSpan(req.Context(), t.cfg.spanName(req),
		tracez.WithSpanKind(trace.SpanKindClient),
		tracez.WithAttributes(
			semconv.HTTPMethodKey.String(req.Method),
			semconv.HTTPURLKey.String(redactURL(req.URL)),
		),
	)
	defer span.Finish()

	// RoundTrippers must not modify the caller's request.
	out := req.Clone(ctx)
	t.cfg.propagator.Inject(span.SpanContext(), tracez.HeaderCarrier(out.Header))

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return resp, nil
}

// redactURL drops user credentials from u.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.User == nil {
		return u.String()
	}
	clean := *u
	clean.User = nil
	return clean.String()
}
