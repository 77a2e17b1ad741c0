// Package tracez is an embedded distributed tracing client.
//
// tracez records spans for the operations of one process, links them into
// traces through context.Context, propagates trace identity across process
// boundaries with traceparent/tracestate headers, and hands finished spans
// to processors that batch and export them. Telemetry never fails the traced
// code: finishing a span, enqueueing it and extracting headers never return
// errors, and export failures only cost dropped spans.
//
// Core Components:
//   - Tracer: Creates spans, assigns identity and parentage, samples roots.
//   - ActiveSpan: Thread-safe handle on a span that is still recording.
//   - Span: Immutable snapshot of a finished span handed to processors.
//   - TraceContext: Injects and extracts traceparent/tracestate headers.
//   - BatchProcessor: Bounded queue flushed by size or interval.
//   - Collector: In-memory processor and exporter for tests and inspection.
//
// Basic Usage:
//
//	processor := tracez.NewBatchProcessor(exporter, tracez.DefaultBatchConfig())
//	tracer := tracez.New(tracez.WithProcessor(processor))
//	defer tracer.Shutdown(ctx)
//
//	// Start a new span.
//	ctx, span := tracer.StartSpan(ctx, "operation-name")
//	defer span.Finish()
//
//	// Add metadata.
//	span.SetTag("user.id", "123")
//
//	// Pass context to child operations.
//	childCtx, childSpan := tracer.StartSpan(ctx, "child-operation")
//	defer childSpan.Finish()
//
//	// Send the active span to a downstream service.
//	tracez.TraceContext{}.InjectContext(childCtx, tracez.HeaderCarrier(req.Header))
//
// Thread Safety:
//
// Tracer, ActiveSpan, BatchProcessor and Collector are safe for concurrent
// use by multiple goroutines. Span snapshots are values shared between
// processors and must be treated as read-only.
//
// Context Propagation:
//
// Spans are linked via context.Context. Child spans inherit their parent's
// TraceID, sampling decision and trace state, and reference the parent's
// SpanID. A remote parent extracted from headers plays the same role as a
// local one.
//
// Memory Management:
//
// The BatchProcessor queue is bounded. Under load the oldest queued span is
// dropped; use BatchProcessor.Stats or the Prometheus metrics to monitor.
//
// Resource Cleanup:
//
// Call tracer.Shutdown(ctx) to flush queued spans within a deadline and stop
// all background goroutines.
package tracez

// Key represents a span operation name.
type Key = string

// Tag represents a span attribute key.
type Tag = string
