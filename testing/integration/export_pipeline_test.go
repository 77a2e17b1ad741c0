package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/storefront/tracez"
	"github.com/storefront/tracez/internal/storefront"
	"github.com/storefront/tracez/tracehttp"
	"github.com/storefront/tracez/zipkin"
)

// zipkinCollector is an in-memory Zipkin span endpoint.
type zipkinCollector struct {
	*httptest.Server
	mu      sync.Mutex
	spans   []zipkin.SpanModel
	batches int
	delay   time.Duration
}

func newZipkinCollector(t *testing.T, delay time.Duration) *zipkinCollector {
	t.Helper()
	z := &zipkinCollector{delay: delay}
	z.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(z.delay)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var batch []zipkin.SpanModel
		if err := sonic.Unmarshal(body, &batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		z.mu.Lock()
		z.spans = append(z.spans, batch...)
		z.batches++
		z.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(z.Close)
	return z
}

func (z *zipkinCollector) received() []zipkin.SpanModel {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make([]zipkin.SpanModel, len(z.spans))
	copy(out, z.spans)
	return out
}

// newExportingTracer wires tracer -> batch processor -> zipkin exporter.
func newExportingTracer(t *testing.T, service, collectorURL string, cfg tracez.BatchConfig, logger *zap.Logger) (*tracez.Tracer, *tracez.BatchProcessor) {
	t.Helper()
	exporter, err := zipkin.New(collectorURL, zipkin.WithLogger(logger), zipkin.WithTimeout(time.Second))
	require.NoError(t, err)
	processor := tracez.NewBatchProcessor(exporter, cfg, tracez.WithBatchLogger(logger))
	tracer := tracez.New(
		tracez.WithLogger(logger),
		tracez.WithResource(tracez.NewResource(service, "test")),
		tracez.WithProcessor(processor),
	)
	return tracer, processor
}

// TestStorefrontTraceReachesZipkin drives the storefront client against a
// traced backend. Both processes export to the same Zipkin collector, where
// the client and server halves join into one trace.
func TestStorefrontTraceReachesZipkin(t *testing.T) {
	collector := newZipkinCollector(t, 0)

	backendTracer, _ := newExportingTracer(t, "storefront-api", collector.URL, tracez.DefaultBatchConfig(), zap.NewNop())
	backend := httptest.NewServer(tracehttp.Middleware(backendTracer)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","name":"Desk Lamp","price":19.5,"quantity":3}`))
	})))
	defer backend.Close()

	clientTracer, _ := newExportingTracer(t, "storefront-cli", collector.URL, tracez.DefaultBatchConfig(), zap.NewNop())
	client := storefront.New(backend.URL, clientTracer)

	product, err := client.Products().Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", product.Name)

	require.NoError(t, clientTracer.Shutdown(context.Background()))
	require.NoError(t, backendTracer.Shutdown(context.Background()))

	spans := collector.received()
	require.Len(t, spans, 3)

	byKind := make(map[string]zipkin.SpanModel)
	var operation zipkin.SpanModel
	for _, s := range spans {
		if s.Name == "getProductById" {
			operation = s
			continue
		}
		byKind[s.Kind] = s
	}

	clientSpan, serverSpan := byKind["CLIENT"], byKind["SERVER"]
	require.NotEmpty(t, operation.ID)
	require.NotNil(t, clientSpan.LocalEndpoint)
	require.NotNil(t, serverSpan.LocalEndpoint)

	assert.Equal(t, operation.TraceID, clientSpan.TraceID)
	assert.Equal(t, operation.TraceID, serverSpan.TraceID)
	assert.Equal(t, operation.ID, clientSpan.ParentID)
	assert.Equal(t, clientSpan.ID, serverSpan.ParentID)
	assert.Empty(t, operation.ParentID)

	assert.Equal(t, "storefront-cli", clientSpan.LocalEndpoint.ServiceName)
	assert.Equal(t, "storefront-api", serverSpan.LocalEndpoint.ServiceName)
	assert.Equal(t, "42", operation.Tags[string(storefront.ProductIDKey)])
	assert.Equal(t, "200", serverSpan.Tags["http.status_code"])
}

// TestSlowCollectorDoesNotBlockApplication verifies span creation is not
// slowed down by a collector that takes long to answer.
func TestSlowCollectorDoesNotBlockApplication(t *testing.T) {
	collector := newZipkinCollector(t, 200*time.Millisecond)
	tracer, processor := newExportingTracer(t, "busy", collector.URL, tracez.BatchConfig{
		BatchSize:     10,
		QueueCapacity: 50,
		FlushInterval: time.Hour,
	}, zap.NewNop())

	start := time.Now()
	for i := 0; i < 500; i++ {
		_, span := tracer.StartSpan(context.Background(), "request")
		span.Finish()
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond, "Finish must not wait on the exporter")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tracer.Shutdown(ctx))

	stats := processor.Stats()
	assert.Positive(t, stats.Dropped, "a full queue drops spans")
	assert.Equal(t, uint64(500), stats.Exported+stats.Dropped)
	assert.Len(t, collector.received(), int(stats.Exported))
}

// TestCollectorOutageIsLoggedNotFatal verifies export failures surface as
// warnings while the application keeps running.
func TestCollectorOutageIsLoggedNotFatal(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()

	core, logs := observer.New(zap.WarnLevel)
	tracer, processor := newExportingTracer(t, "offline", url, tracez.BatchConfig{
		BatchSize:     5,
		QueueCapacity: 100,
		FlushInterval: time.Hour,
	}, zap.New(core))

	for i := 0; i < 5; i++ {
		_, span := tracer.StartSpan(context.Background(), "request")
		span.Finish()
	}
	require.NoError(t, tracer.ForceFlush(context.Background()))

	assert.Equal(t, uint64(5), processor.DroppedCount())
	assert.Equal(t, uint64(1), processor.Stats().FailedBatches)
	assert.NotZero(t, logs.FilterMessage("span export failed, batch dropped").Len())

	require.NoError(t, tracer.Shutdown(context.Background()))
}
