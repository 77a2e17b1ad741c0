// Package storefront is a traced REST client for the storefront backend.
//
// Every logical operation runs in its own span named after the operation;
// the HTTP exchange underneath it is a client span that carries the trace
// headers to the backend.
package storefront

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/storefront/tracez"
	"github.com/storefront/tracez/tracehttp"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://localhost:8080"

// StatusError is returned when the backend answers with status >= 400.
type StatusError struct {
	Op         string
	Status     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend responded %s", e.Op, e.Status)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithBaseTransport sets the transport below the tracing layer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// Client talks to the storefront backend.
// Safe for concurrent use by multiple goroutines.
type Client struct {
	resty   *resty.Client
	tracer  *tracez.Tracer
	logger  *zap.Logger
	base    http.RoundTripper
	timeout time.Duration
}

// New creates a client for the backend at baseURL.
func New(baseURL string, tracer *tracez.Tracer, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		tracer:  tracer,
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.resty = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "storefront-cli/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetLogger(c.logger.Sugar()).
		SetTransport(tracehttp.NewTransport(tracer, c.base))
	return c
}

// SetToken sends token as bearer authorization on later requests.
func (c *Client) SetToken(token string) {
	c.resty.SetAuthToken(token)
}

// Products returns the product operations.
func (c *Client) Products() *ProductService {
	return &ProductService{client: c}
}

// Auth returns the authentication operations.
func (c *Client) Auth() *AuthService {
	return &AuthService{client: c}
}

// call runs one backend operation inside a span named op.
func (c *Client) call(ctx context.Context, op string, attrs []attribute.KeyValue,
	send func(req *resty.Request) (*resty.Response, error)) error {
	return c.tracer.WithSpan(ctx, op, func(ctx context.Context, span *tracez.ActiveSpan) error {
		resp, err := send(c.resty.R().SetContext(ctx))
		if err != nil {
			c.logger.Debug("request failed", zap.String("operation", op), zap.Error(err))
			return fmt.Errorf("%s: %w", op, err)
		}
		if resp.IsError() {
			return &StatusError{Op: op, Status: resp.Status(), StatusCode: resp.StatusCode()}
		}

		span.AddEvent("response received",
			attribute.Int("http.status_code", resp.StatusCode()),
			attribute.Int64("response.size", resp.Size()),
		)
		span.SetStatus(codes.Ok, "")
		return nil
	}, tracez.WithAttributes(attrs...))
}
