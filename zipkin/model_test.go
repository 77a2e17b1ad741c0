package zipkin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront/tracez"
)

var testStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock interface {
	clockz.Clock
	Advance(d time.Duration)
}

// recordSpans runs fn against a tracer backed by a sync-mode collector and
// returns the finished spans in completion order.
func recordSpans(t *testing.T, fn func(ctx context.Context, tracer *tracez.Tracer, clock fakeClock)) []tracez.Span {
	t.Helper()

	clock := clockz.NewFakeClockAt(testStart)
	collector := tracez.NewCollector("zipkin-test", 100)
	collector.SetSyncMode(true)

	tracer := tracez.New(
		tracez.WithClock(clock),
		tracez.WithResource(tracez.NewResource("storefront", "1.0.0")),
		tracez.WithProcessor(collector),
	)
	fn(context.Background(), tracer, clock)
	spans := collector.Export()
	require.NoError(t, tracer.Shutdown(context.Background()))
	return spans
}

func TestFromSpan(t *testing.T) {
	spans := recordSpans(t, func(ctx context.Context, tracer *tracez.Tracer, clock fakeClock) {
		ctx, parent := tracer.StartSpan(ctx, "getAllProducts", tracez.WithSpanKind(trace.SpanKindClient))
		parent.SetTag("http.method", "GET")
		parent.SetIntTag("http.status_code", 200)
		clock.Advance(1500 * time.Microsecond)
		parent.AddEvent("products loaded", attribute.Int("count", 3))
		parent.SetStatus(codes.Ok, "")

		_, child := tracer.StartSpan(ctx, "decode")
		clock.Advance(time.Millisecond)
		child.Finish()

		clock.Advance(500 * time.Microsecond)
		parent.Finish()
	})
	require.Len(t, spans, 2)

	child := FromSpan(spans[0])
	parent := FromSpan(spans[1])

	assert.Equal(t, spans[1].TraceID().String(), parent.TraceID)
	assert.Equal(t, spans[1].SpanID().String(), parent.ID)
	assert.Empty(t, parent.ParentID)
	assert.Equal(t, "getAllProducts", parent.Name)
	assert.Equal(t, "CLIENT", parent.Kind)
	assert.Equal(t, testStart.UnixMicro(), parent.Timestamp)
	assert.Equal(t, int64(3000), parent.Duration)
	require.NotNil(t, parent.LocalEndpoint)
	assert.Equal(t, "storefront", parent.LocalEndpoint.ServiceName)

	assert.Equal(t, "GET", parent.Tags["http.method"])
	assert.Equal(t, "200", parent.Tags["http.status_code"])
	assert.Equal(t, "1.0.0", parent.Tags["service.version"])
	assert.Equal(t, "OK", parent.Tags[StatusCodeTag])
	assert.NotContains(t, parent.Tags, "service.name")
	assert.NotContains(t, parent.Tags, ErrorTag)

	require.Len(t, parent.Annotations, 1)
	assert.Equal(t, `products loaded: {"count":3}`, parent.Annotations[0].Value)
	assert.Equal(t, testStart.Add(1500*time.Microsecond).UnixMicro(), parent.Annotations[0].Timestamp)

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.ID, child.ParentID)
	assert.Empty(t, child.Kind)
	assert.Equal(t, int64(1000), child.Duration)
}

func TestFromSpanError(t *testing.T) {
	spans := recordSpans(t, func(ctx context.Context, tracer *tracez.Tracer, _ fakeClock) {
		span := tracer.CreateSpan(ctx, "deleteProduct", tracez.WithSpanKind(trace.SpanKindServer))
		span.RecordError(errors.New("product not found"))
		span.Finish()
	})
	require.Len(t, spans, 1)

	model := FromSpan(spans[0])
	assert.Equal(t, "SERVER", model.Kind)
	assert.Equal(t, "ERROR", model.Tags[StatusCodeTag])
	assert.Equal(t, "product not found", model.Tags[ErrorTag])
	require.Len(t, model.Annotations, 1)
	assert.Contains(t, model.Annotations[0].Value, "exception: ")
	assert.Contains(t, model.Annotations[0].Value, `"exception.message":"product not found"`)
}

func TestFromSpansEmpty(t *testing.T) {
	models := FromSpans(nil)
	assert.NotNil(t, models)
	assert.Empty(t, models)
}
