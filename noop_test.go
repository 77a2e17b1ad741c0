package tracez

import (
	"context"
	"runtime"
	"testing"
)

func BenchmarkNoOpSpan(b *testing.B) {
	tracer := New()
	defer tracer.Shutdown(context.Background())

	ctx := context.Background()

	b.Run("no-processors", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, span := tracer.StartSpan(ctx, "test-op")
			span.SetTag("key", "value")
			span.SetIntTag("int", 123)
			span.SetBoolTag("bool", true)
			span.Finish()
		}
	})

	b.Run("unsampled", func(b *testing.B) {
		unsampled := New(WithSampler(NeverSample()), WithProcessor(SpanHandler(func(Span) {})))
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, span := unsampled.StartSpan(ctx, "test-op")
			span.SetTag("key", "value")
			span.Finish()
		}
	})

	b.Run("with-handler", func(b *testing.B) {
		tracer.OnSpanComplete(func(_ Span) {})
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, span := tracer.StartSpan(ctx, "test-op")
			span.SetTag("key", "value")
			span.SetIntTag("int", 123)
			span.SetBoolTag("bool", true)
			span.Finish()
		}
	})
}

func TestNoProcessorBehavior(t *testing.T) {
	tracer := New()
	defer tracer.Shutdown(context.Background())

	ctx := context.Background()

	// Spans are fully recorded even when nothing consumes them.
	ctx, span := tracer.StartSpan(ctx, "test-op")
	span.SetTag("key", "value")
	span.SetIntTag("int", 123)
	span.SetBoolTag("bool", true)

	if !span.TraceID().IsValid() {
		t.Error("Expected valid TraceID without processors")
	}
	if !span.SpanID().IsValid() {
		t.Error("Expected valid SpanID without processors")
	}
	if val, ok := span.GetTag("key"); !ok || val != "value" {
		t.Errorf("Expected tag key=value, got %v, %v", val, ok)
	}
	if got := SpanFromContext(ctx); got != span {
		t.Error("Expected span to be active in returned context")
	}

	span.Finish()

	// Add a handler and verify delivery starts.
	var captured Span
	tracer.OnSpanComplete(func(s Span) {
		captured = s
	})

	_, span = tracer.StartSpan(ctx, "real-op")
	span.SetTag("key", "value")
	span.Finish()

	// Handlers run synchronously from Finish.
	if captured.Name != "real-op" {
		t.Errorf("Expected handler to receive 'real-op', got %q", captured.Name)
	}
	if v, ok := captured.Attribute("key"); !ok || v.AsString() != "value" {
		t.Error("Expected span to carry the tag")
	}
}

func TestNilSpanIsNoOp(t *testing.T) {
	var span *ActiveSpan

	span.SetTag("key", "value")
	span.AddEvent("event")
	span.SetStatus(StatusError, "boom")
	span.RecordError(context.Canceled)
	span.Finish()

	if span.IsRecording() {
		t.Error("Expected nil span not to be recording")
	}
	if span.SpanContext().IsValid() {
		t.Error("Expected zero span context for nil span")
	}
	if _, ok := span.GetTag("key"); ok {
		t.Error("Expected no tag on nil span")
	}

	ctx := context.Background()
	if span.Context(ctx) != ctx {
		t.Error("Expected nil span to leave context unchanged")
	}

	// The result of SpanFromContext is usable directly.
	SpanFromContext(ctx).SetTag("ignored", "value")
}

func TestNoOpMemoryUsage(t *testing.T) {
	tracer := New()
	defer tracer.Shutdown(context.Background())

	var m1, m2 runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m1)

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		_, span := tracer.StartSpan(ctx, Key("test-op"))
		span.SetTag("key", "value")
		span.Finish()
	}

	runtime.GC()
	runtime.ReadMemStats(&m2)

	allocBytes := m2.TotalAlloc - m1.TotalAlloc
	allocsPerOp := allocBytes / 1000

	// Generous threshold to account for runtime overhead.
	if allocsPerOp > 2048 {
		t.Errorf("spans without processors allocating too much memory: %d bytes per operation", allocsPerOp)
	}
}
