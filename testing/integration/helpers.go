package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storefront/tracez"
	"github.com/storefront/tracez/tracehttp"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []tracez.Span
	*tracez.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := tracez.NewCollector(name, bufferSize)
	collector.SetSyncMode(true) // Enable synchronous collection for testing.
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]tracez.Span, 0),
	}
}

// NewTracedService returns a tracer for service name that delivers every
// finished span to a synchronous MockCollector.
func NewTracedService(t *testing.T, name string) (*tracez.Tracer, *MockCollector) {
	collector := NewMockCollector(t, name, 1000)
	tracer := tracez.New(
		tracez.WithResource(tracez.NewResource(name, "test")),
		tracez.WithProcessor(collector.Collector),
	)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })
	return tracer, collector
}

// Export returns collected spans and clears the buffer.
func (m *MockCollector) Export() []tracez.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// GetAll returns all exported spans without clearing.
func (m *MockCollector) GetAll() []tracez.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.Collector.Export()
	if len(current) > 0 {
		m.exported = append(m.exported, current...)
	}

	all := make([]tracez.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits until at least expected spans were collected.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []tracez.Span {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if spans := m.GetAll(); len(spans) >= expected {
			return spans
		}
		<-ticker.C
	}

	spans := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanNamed returns the first span with the given name.
func (m *MockCollector) AssertSpanNamed(name string) *tracez.Span {
	spans := m.GetAll()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     tracez.Span
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from flat span list. Spans whose parent
// is not in the list, such as server spans under a remote parent, are roots.
func BuildSpanTree(spans []tracez.Span) []*SpanTree {
	nodeMap := make(map[tracez.SpanID]*SpanTree, len(spans))
	roots := make([]*SpanTree, 0)

	for i := range spans {
		nodeMap[spans[i].SpanID()] = &SpanTree{Span: spans[i]}
	}

	for i := range spans {
		span := spans[i]
		node := nodeMap[span.SpanID()]
		if parent, exists := nodeMap[span.ParentSpanID]; exists && span.HasParent() {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}

	return roots
}

// PrintSpanTree formats span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s [%s] (%.2fms)\n",
		indent, node.Span.Name, node.Span.Resource.ServiceName(), node.Span.Duration.Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	spans  []tracez.Span
	byName map[string][]tracez.Span
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of spans.
func NewTraceAnalyzer(spans []tracez.Span) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans:  spans,
		byName: make(map[string][]tracez.Span),
		trees:  BuildSpanTree(spans),
	}
	for _, span := range spans {
		a.byName[span.Name] = append(a.byName[span.Name], span)
	}
	return a
}

// GetSpansByName retrieves all spans with given name.
func (a *TraceAnalyzer) GetSpansByName(name string) []tracez.Span {
	return a.byName[name]
}

// CountTrees returns number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// TraceIDs returns the distinct trace ids.
func (a *TraceAnalyzer) TraceIDs() map[tracez.TraceID]int {
	out := make(map[tracez.TraceID]int)
	for _, span := range a.spans {
		out[span.TraceID()]++
	}
	return out
}

// VerifyChain checks if spans form a valid parent-child chain.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}

	var prev *tracez.Span
	for i, name := range names {
		spans := a.GetSpansByName(name)
		if len(spans) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}
		span := spans[0]

		if prev != nil {
			if span.ParentSpanID != prev.SpanID() {
				return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
			}
			if span.TraceID() != prev.TraceID() {
				return fmt.Errorf("broken chain: %s left trace of %s", name, names[i-1])
			}
		}
		prev = &span
	}

	return nil
}

// MockService is an HTTP service traced with tracehttp. It optionally
// calls a downstream service through a traced client before answering.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockService struct {
	*httptest.Server
	Tracer     *tracez.Tracer
	Collector  *MockCollector
	name       string
	downstream string
	status     int
	mu         sync.Mutex
	requests   int
}

// NewMockService starts a traced service. Downstream may be empty.
func NewMockService(t *testing.T, name, downstream string) *MockService {
	tracer, collector := NewTracedService(t, name)
	m := &MockService{
		Tracer:     tracer,
		Collector:  collector,
		name:       name,
		downstream: downstream,
		status:     http.StatusOK,
	}

	client := tracehttp.NewClient(tracer)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests++
		status := m.status
		m.mu.Unlock()

		err := tracer.WithSpan(r.Context(), m.name+".handle", func(ctx context.Context, span *tracez.ActiveSpan) error {
			span.SetTag("service", m.name)
			if m.downstream == "" {
				return nil
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.downstream, http.NoBody)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("%s: downstream returned %d", m.name, resp.StatusCode)
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(status)
	})

	m.Server = httptest.NewServer(tracehttp.Middleware(tracer)(handler))
	t.Cleanup(m.Close)
	return m
}

// SetStatus sets the status code returned by the service.
func (m *MockService) SetStatus(status int) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

// Requests returns the number of handled requests.
func (m *MockService) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}
