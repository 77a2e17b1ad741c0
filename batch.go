package tracez

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Batch defaults.
const (
	DefaultBatchSize     = 50
	DefaultQueueCapacity = 2048
	DefaultFlushInterval = 2 * time.Second
	DefaultExportTimeout = 10 * time.Second
)

// BatchConfig controls queueing and flushing of a BatchProcessor.
type BatchConfig struct {
	// BatchSize is the queue length that triggers an immediate flush and
	// the maximum number of spans per export call.
	BatchSize int
	// QueueCapacity bounds the number of queued spans. When full, the
	// oldest span is dropped.
	QueueCapacity int
	// FlushInterval is the longest a span waits before a flush.
	FlushInterval time.Duration
	// ExportTimeout bounds every export call.
	ExportTimeout time.Duration
}

// DefaultBatchConfig returns the default batching parameters.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:     DefaultBatchSize,
		QueueCapacity: DefaultQueueCapacity,
		FlushInterval: DefaultFlushInterval,
		ExportTimeout: DefaultExportTimeout,
	}
}

func (c BatchConfig) normalized() BatchConfig {
	d := DefaultBatchConfig()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchSize > c.QueueCapacity {
		c.BatchSize = c.QueueCapacity
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = d.ExportTimeout
	}
	return c
}

// BatchStats is a point-in-time view of processor counters.
type BatchStats struct {
	Queued        int
	Exported      uint64
	Dropped       uint64
	FailedBatches uint64
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchClock sets the clock driving the flush timer.
func WithBatchClock(clock clockz.Clock) BatchOption {
	return func(b *BatchProcessor) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithBatchLogger sets the logger for export failures and drops.
func WithBatchLogger(logger *zap.Logger) BatchOption {
	return func(b *BatchProcessor) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics mirrors processor counters into Prometheus collectors.
func WithMetrics(m *Metrics) BatchOption {
	return func(b *BatchProcessor) {
		b.metrics = m
	}
}

type flushRequest struct {
	ctx  context.Context
	done chan error
}

// BatchProcessor queues finished spans and exports them in batches from a
// dedicated goroutine. OnEnd never performs I/O and never blocks on the
// exporter; when the queue is full the oldest span is dropped.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for readability
type BatchProcessor struct {
	exporter     Exporter
	cfg          BatchConfig
	clock        clockz.Clock
	logger       *zap.Logger
	metrics      *Metrics
	dropLog      *rate.Limiter
	queue        spanRing
	flushCh      chan struct{}
	forceCh      chan flushRequest
	stopCh       chan struct{}
	done         chan struct{}
	exported     atomic.Uint64
	dropped      atomic.Uint64
	failed       atomic.Uint64
	shutdownOnce sync.Once
	mu           sync.Mutex // Protects queue and stopped.
	stopped      bool
}

// NewBatchProcessor creates a processor exporting through exporter and
// starts its flush goroutine. Non-positive config values take defaults.
func NewBatchProcessor(exporter Exporter, cfg BatchConfig, opts ...BatchOption) *BatchProcessor {
	cfg = cfg.normalized()
	b := &BatchProcessor{
		exporter: exporter,
		cfg:      cfg,
		clock:    clockz.RealClock,
		logger:   zap.NewNop(),
		dropLog:  rate.NewLimiter(rate.Every(time.Second), 1),
		queue:    newSpanRing(cfg.QueueCapacity),
		flushCh:  make(chan struct{}, 1),
		forceCh:  make(chan flushRequest),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

// OnEnd enqueues a finished span. Reaching BatchSize wakes the flush
// goroutine without waiting for the interval.
func (b *BatchProcessor) OnEnd(span Span) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		b.recordDrop(1, "processor shut down")
		return
	}
	overflow := b.queue.push(span)
	size := b.queue.len()
	b.mu.Unlock()

	b.metrics.queueLength(size)
	if overflow {
		b.recordDrop(1, "queue full")
	}
	if size >= b.cfg.BatchSize {
		select {
		case b.flushCh <- struct{}{}:
		default:
			// A flush is already pending.
		}
	}
}

// run is the flush loop. It is the only consumer of the queue until
// Shutdown takes over.
func (b *BatchProcessor) run() {
	defer close(b.done)

	for {
		timer := b.clock.After(b.cfg.FlushInterval)
		select {
		case <-b.stopCh:
			return
		case <-b.flushCh:
			_ = b.exportAll(context.Background())
		case <-timer:
			_ = b.exportAll(context.Background())
		case req := <-b.forceCh:
			req.done <- b.exportAll(req.ctx)
		}
	}
}

// exportAll drains the queue in batches of at most BatchSize. When ctx
// expires the remaining spans are dropped.
func (b *BatchProcessor) exportAll(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			if n := b.discard(); n > 0 {
				b.recordDrop(n, "flush deadline exceeded")
			}
			return err
		}

		b.mu.Lock()
		batch := b.queue.pop(b.cfg.BatchSize)
		size := b.queue.len()
		b.mu.Unlock()

		if len(batch) == 0 {
			return nil
		}
		b.metrics.queueLength(size)
		b.exportBatch(ctx, batch)
	}
}

func (b *BatchProcessor) exportBatch(ctx context.Context, batch []Span) {
	exportCtx, cancel := context.WithTimeout(ctx, b.cfg.ExportTimeout)
	defer cancel()

	if err := b.safeExport(exportCtx, batch); err != nil {
		b.failed.Add(1)
		b.metrics.failed()
		b.logger.Warn("span export failed, batch dropped",
			zap.Int("spans", len(batch)),
			zap.Error(err),
		)
		b.recordDrop(len(batch), "export failed")
		return
	}

	b.exported.Add(uint64(len(batch)))
	b.metrics.exported(len(batch))
}

func (b *BatchProcessor) safeExport(ctx context.Context, batch []Span) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exporter panicked: %v", r)
		}
	}()
	return b.exporter.ExportSpans(ctx, batch)
}

func (b *BatchProcessor) discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.queue.len()
	b.queue.pop(n)
	b.metrics.queueLength(0)
	return n
}

func (b *BatchProcessor) recordDrop(n int, reason string) {
	total := b.dropped.Add(uint64(n))
	b.metrics.dropped(n)
	if b.dropLog.Allow() {
		b.logger.Warn("dropping spans",
			zap.Int("count", n),
			zap.String("reason", reason),
			zap.Uint64("dropped_total", total),
		)
	}
}

// ForceFlush exports every queued span before returning, bounded by ctx.
func (b *BatchProcessor) ForceFlush(ctx context.Context) error {
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	if stopped {
		return ErrProcessorShutdown
	}

	req := flushRequest{ctx: ctx, done: make(chan error, 1)}
	select {
	case b.forceCh <- req:
	case <-b.done:
		return ErrProcessorShutdown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting spans, performs a final flush bounded by ctx and
// shuts the exporter down. Spans that cannot be flushed in time are dropped.
// Safe to call multiple times; only the first call does work.
func (b *BatchProcessor) Shutdown(ctx context.Context) error {
	var err error
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()
		close(b.stopCh)

		select {
		case <-b.done:
			err = b.exportAll(ctx)
		case <-ctx.Done():
			err = ctx.Err()
			if n := b.discard(); n > 0 {
				b.recordDrop(n, "shutdown deadline exceeded")
			}
		}

		if xerr := b.exporter.Shutdown(ctx); xerr != nil {
			err = errors.Join(err, xerr)
		}
	})
	return err
}

// Stats returns the current counters.
func (b *BatchProcessor) Stats() BatchStats {
	b.mu.Lock()
	queued := b.queue.len()
	b.mu.Unlock()
	return BatchStats{
		Queued:        queued,
		Exported:      b.exported.Load(),
		Dropped:       b.dropped.Load(),
		FailedBatches: b.failed.Load(),
	}
}

// DroppedCount returns the total number of spans that were never delivered.
func (b *BatchProcessor) DroppedCount() uint64 {
	return b.dropped.Load()
}

// spanRing is a fixed-capacity FIFO that overwrites its oldest element.
// Not safe for concurrent use.
type spanRing struct {
	buf  []Span
	head int
	size int
}

func newSpanRing(capacity int) spanRing {
	return spanRing{buf: make([]Span, capacity)}
}

func (r *spanRing) len() int { return r.size }

// push appends s and reports whether the oldest element was overwritten.
func (r *spanRing) push(s Span) bool {
	if r.size == len(r.buf) {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
		return true
	}
	r.buf[(r.head+r.size)%len(r.buf)] = s
	r.size++
	return false
}

// pop removes and returns up to n elements, oldest first.
func (r *spanRing) pop(n int) []Span {
	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil
	}
	out := make([]Span, n)
	for i := 0; i < n; i++ {
		idx := (r.head + i) % len(r.buf)
		out[i] = r.buf[idx]
		r.buf[idx] = Span{}
	}
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	return out
}
