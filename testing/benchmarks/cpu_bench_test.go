package benchmarks

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/storefront/tracez"
	"github.com/storefront/tracez/zipkin"
)

// discardExporter accepts every batch.
type discardExporter struct {
	spans atomic.Int64
}

func (e *discardExporter) ExportSpans(_ context.Context, spans []tracez.Span) error {
	e.spans.Add(int64(len(spans)))
	return nil
}

func (*discardExporter) Shutdown(context.Context) error { return nil }

// BenchmarkSpanCreationRate measures raw span creation throughput.
func BenchmarkSpanCreationRate(b *testing.B) {
	tracer := tracez.New()
	defer tracer.Shutdown(context.Background())

	ctx := context.Background()

	b.ResetTimer()
	start := time.Now()

	for i := 0; i < b.N; i++ {
		_, span := tracer.StartSpan(ctx, "rate-span")
		span.Finish()
	}

	elapsed := time.Since(start)
	b.ReportMetric(float64(b.N)/elapsed.Seconds(), "spans/sec")
}

// BenchmarkSpanCreationRateParallel measures parallel span creation throughput.
func BenchmarkSpanCreationRateParallel(b *testing.B) {
	tracer := tracez.New()
	defer tracer.Shutdown(context.Background())

	ctx := context.Background()
	var counter atomic.Int64

	b.ResetTimer()
	start := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, span := tracer.StartSpan(ctx, "parallel-rate-span")
			span.Finish()
			counter.Add(1)
		}
	})

	elapsed := time.Since(start)
	b.ReportMetric(float64(counter.Load())/elapsed.Seconds(), "spans/sec")
}

// BenchmarkContextPropagation measures child span creation under a parent.
func BenchmarkContextPropagation(b *testing.B) {
	tracer := tracez.New()
	defer tracer.Shutdown(context.Background())

	parentCtx, parentSpan := tracer.StartSpan(context.Background(), "parent")
	defer parentSpan.Finish()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, childSpan := tracer.StartSpan(parentCtx, "child")
		childSpan.Finish()
	}
}

// BenchmarkTagOperations measures attribute cost across sizes.
func BenchmarkTagOperations(b *testing.B) {
	for _, count := range []int{1, 5, 10, 20} {
		keys := make([]string, count)
		for j := range keys {
			keys[j] = fmt.Sprintf("key_%d", j)
		}

		b.Run(fmt.Sprintf("tags-%d", count), func(b *testing.B) {
			tracer := tracez.New()
			defer tracer.Shutdown(context.Background())

			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_, span := tracer.StartSpan(ctx, "tagged-span")
				for _, key := range keys {
					span.SetTag(key, "value")
				}
				span.Finish()
			}
		})
	}
}

// BenchmarkHeaderPropagation measures a full inject/extract cycle, the cost
// paid on every outbound and inbound request.
func BenchmarkHeaderPropagation(b *testing.B) {
	tracer := tracez.New()
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.StartSpan(context.Background(), "client")
	defer span.Finish()
	p := tracez.TraceContext{}

	b.Run("inject", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			header := make(http.Header, 2)
			p.InjectContext(ctx, tracez.HeaderCarrier(header))
		}
	})

	header := http.Header{}
	p.InjectContext(ctx, tracez.HeaderCarrier(header))
	header.Set(tracez.TraceStateHeader, "vendor=a;tenant=7;region=eu")

	b.Run("extract", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, ok := p.Extract(tracez.HeaderCarrier(header)); !ok {
				b.Fatal("extract failed")
			}
		}
	})
}

// BenchmarkBatchProcessorOnEnd measures the cost Finish pays to hand a span
// to the batch processor.
func BenchmarkBatchProcessorOnEnd(b *testing.B) {
	exporter := &discardExporter{}
	processor := tracez.NewBatchProcessor(exporter, tracez.DefaultBatchConfig())
	tracer := tracez.New(tracez.WithProcessor(processor))
	defer tracer.Shutdown(context.Background())

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, span := tracer.StartSpan(ctx, "batched")
			span.Finish()
		}
	})
	b.StopTimer()

	b.ReportMetric(float64(processor.DroppedCount())/float64(b.N), "dropped/op")
}

// BenchmarkZipkinEncode measures conversion and JSON encoding of a batch.
func BenchmarkZipkinEncode(b *testing.B) {
	var spans []tracez.Span
	tracer := tracez.New(
		tracez.WithResource(tracez.NewResource("bench", "1.0.0")),
		tracez.WithProcessor(tracez.SpanHandler(func(s tracez.Span) { spans = append(spans, s) })),
	)
	for i := 0; i < 50; i++ {
		_, span := tracer.StartSpan(context.Background(), "encode")
		span.SetTag("http.method", "GET")
		span.SetIntTag("http.status_code", 200)
		span.AddEvent("response received")
		span.Finish()
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := sonic.Marshal(zipkin.FromSpans(spans)); err != nil {
			b.Fatal(err)
		}
	}
}
