package zipkin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/storefront/tracez"
)

// DefaultCollectorURL is the span endpoint of a local Zipkin.
const DefaultCollectorURL = "http://localhost:9411/api/v2/spans"

var (
	// ErrExporterShutdown is returned by ExportSpans after Shutdown.
	ErrExporterShutdown = errors.New("zipkin: exporter is shut down")
	// ErrUnexpectedStatus wraps non-2xx collector responses.
	ErrUnexpectedStatus = errors.New("zipkin: unexpected collector status")
)

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger for transport diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout bounds each POST, retries included.
func WithTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.client.HTTPClient.Timeout = d
		}
	}
}

// WithRetryMax sets how many times a failed POST is retried. The default of
// zero delivers each batch at most once.
func WithRetryMax(n int) Option {
	return func(e *Exporter) {
		if n >= 0 {
			e.client.RetryMax = n
		}
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(e *Exporter) {
		e.client.RetryWaitMin = minWait
		e.client.RetryWaitMax = maxWait
	}
}

// WithTransport replaces the HTTP transport used for POSTs.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *Exporter) {
		if rt != nil {
			e.client.HTTPClient.Transport = rt
		}
	}
}

// Exporter posts span batches to a Zipkin collector.
// Safe for concurrent use by multiple goroutines.
type Exporter struct {
	url    string
	client *retryablehttp.Client
	logger *zap.Logger
	api    sonic.API
	closed atomic.Bool
}

var _ tracez.Exporter = (*Exporter)(nil)

// New creates an exporter posting to collectorURL.
func New(collectorURL string, opts ...Option) (*Exporter, error) {
	if collectorURL == "" {
		collectorURL = DefaultCollectorURL
	}
	u, err := url.Parse(collectorURL)
	if err != nil {
		return nil, fmt.Errorf("zipkin: invalid collector url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("zipkin: invalid collector url scheme %q", u.Scheme)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = tracez.DefaultExportTimeout
	// Hand every final response back so status handling lives in one place.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	e := &Exporter{
		url:    collectorURL,
		client: client,
		logger: zap.NewNop(),
		api:    sonic.ConfigStd,
	}
	for _, opt := range opts {
		opt(e)
	}
	client.Logger = leveledLogger{e.logger.Sugar()}
	return e, nil
}

// URL returns the collector endpoint.
func (e *Exporter) URL() string {
	return e.url
}

// ExportSpans encodes spans and posts them in one request. Any error means
// the batch was not delivered.
func (e *Exporter) ExportSpans(ctx context.Context, spans []tracez.Span) error {
	if e.closed.Load() {
		return ErrExporterShutdown
	}
	if len(spans) == 0 {
		return nil
	}

	body, err := e.api.Marshal(FromSpans(spans))
	if err != nil {
		return fmt.Errorf("zipkin: encode spans: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("zipkin: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("zipkin: post spans: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	e.logger.Debug("exported spans",
		zap.Int("spans", len(spans)),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// Shutdown makes further exports fail fast and releases idle connections.
func (e *Exporter) Shutdown(context.Context) error {
	if e.closed.CompareAndSwap(false, true) {
		e.client.HTTPClient.CloseIdleConnections()
	}
	return nil
}

// leveledLogger routes retryablehttp diagnostics to zap. Failed exports
// are reported once by the span processor, so transport errors stay at
// debug level here.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}
