package tracez

import (
	"context"
	"errors"
)

var (
	// ErrProcessorShutdown is returned by ForceFlush after Shutdown.
	ErrProcessorShutdown = errors.New("tracez: span processor is shut down")
)

// SpanProcessor receives every finished, sampled span.
//
// OnEnd is called synchronously from ActiveSpan.Finish and must return
// quickly: no network I/O, no unbounded blocking.
type SpanProcessor interface {
	OnEnd(span Span)
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Exporter delivers batches of finished spans to a collector.
// A returned error means the batch was not delivered; callers drop it.
type Exporter interface {
	ExportSpans(ctx context.Context, spans []Span) error
	Shutdown(ctx context.Context) error
}

// SpanHandler is called when a span completes. It satisfies SpanProcessor
// so plain functions can be registered with a Tracer.
type SpanHandler func(span Span)

// OnEnd calls the handler.
func (h SpanHandler) OnEnd(span Span) { h(span) }

// ForceFlush is a no-op.
func (SpanHandler) ForceFlush(context.Context) error { return nil }

// Shutdown is a no-op.
func (SpanHandler) Shutdown(context.Context) error { return nil }
