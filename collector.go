package tracez

import (
	"context"
	"sync"
	"sync/atomic"
)

// Collector buffers completed spans in memory.
// It is both a SpanProcessor, receiving spans straight from a Tracer, and an
// Exporter, receiving batches from a BatchProcessor. Export drains what it
// holds. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []Span
	spansCh      chan Span
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool // Track if collector is closed.
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	if bufferSize < 1 {
		bufferSize = 1
	}
	c := &Collector{
		name:    name,
		spans:   make([]Span, 0, 8), // Start with small capacity.
		spansCh: make(chan Span, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving spans from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			c.drainChannel()
			return
		case span := <-c.spansCh:
			c.bufferSpan(span)
		}
	}
}

func (c *Collector) drainChannel() {
	for {
		select {
		case span := <-c.spansCh:
			c.bufferSpan(span)
		default:
			return
		}
	}
}

// OnEnd collects a finished span handed over by a Tracer.
func (c *Collector) OnEnd(span Span) {
	c.Collect(span)
}

// ExportSpans collects every span of a batch.
func (c *Collector) ExportSpans(_ context.Context, spans []Span) error {
	if c.closed.Load() {
		return ErrProcessorShutdown
	}
	for i := range spans {
		c.Collect(spans[i])
	}
	return nil
}

// Collect attempts to buffer a span with backpressure protection.
// If the internal channel is full, the span is dropped and the drop counter is incremented.
// In sync mode, spans are collected directly for deterministic testing.
func (c *Collector) Collect(span Span) {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	// Deep copy so later changes to the caller's slices are not observed.
	spanCopy := span.clone()

	if c.syncMode.Load() {
		c.bufferSpan(spanCopy)
		return
	}

	select {
	case c.spansCh <- spanCopy:
		// Successfully queued.
	default:
		// Channel full - drop span to prevent blocking.
		c.droppedCount.Add(1)
	}
}

// bufferSpan adds a span to the internal buffer.
func (c *Collector) bufferSpan(span Span) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if buffer needs to grow - optimized growth strategy.
	if len(c.spans) >= cap(c.spans) {
		currentCap := cap(c.spans)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		newSlice := make([]Span, len(c.spans), newCap)
		copy(newSlice, c.spans)
		c.spans = newSlice
	}
	c.spans = append(c.spans, span)
}

// Export returns a copy of all buffered spans and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}

	result := make([]Span, len(c.spans))
	for i := range c.spans {
		result[i] = c.spans[i].clone()
	}

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.spans) > 256 && len(c.spans) < cap(c.spans)/8 {
		newCap := cap(c.spans) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.spans = make([]Span, 0, newCap)
	} else {
		clear(c.spans)
		c.spans = c.spans[:0] // Keep capacity, reset length.
	}

	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the total number of spans dropped due to backpressure
// or because the collector was shut down.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, spans are collected directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered spans and resets the drop counter.
// Does not affect the running goroutine - use Shutdown for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.spans)
	c.spans = c.spans[:0]
	c.droppedCount.Store(0)
}

// ForceFlush waits until every span queued on the channel is buffered.
func (c *Collector) ForceFlush(ctx context.Context) error {
	for len(c.spansCh) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
			c.drainChannel()
		}
	}
	return nil
}

// Shutdown stops the collector goroutine after draining queued spans.
// Buffered spans stay available through Export. Safe to call multiple times.
func (c *Collector) Shutdown(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
	})
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
