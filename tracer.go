package tracez

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const unnamedSpan = "unnamed"

type processorEntry struct {
	processor SpanProcessor
	id        uint64
}

// Tracer creates spans, assigns their identity and parentage, and hands
// finished spans to its processors.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	processors     []processorEntry
	panicHook      func(processorID uint64, r interface{})
	pools          atomic.Pointer[idPools]
	clock          clockz.Clock
	sampler        Sampler
	logger         *zap.Logger
	resource       Resource
	processorsLock sync.RWMutex
	poolsLock      sync.Mutex
	nextID         atomic.Uint64
	misuseCount    atomic.Uint64
	closed         atomic.Bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithSampler sets the sampler consulted for trace roots.
func WithSampler(sampler Sampler) Option {
	return func(t *Tracer) {
		if sampler != nil {
			t.sampler = sampler
		}
	}
}

// WithResource sets the resource attached to every span.
func WithResource(resource Resource) Option {
	return func(t *Tracer) {
		t.resource = resource
	}
}

// WithProcessor registers a span processor at construction.
func WithProcessor(processor SpanProcessor) Option {
	return func(t *Tracer) {
		t.registerProcessor(processor)
	}
}

// New creates a new tracer.
// Uses the real clock, samples every trace and logs nothing unless
// configured otherwise.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		processors: make([]processorEntry, 0),
		clock:      clockz.RealClock,
		sampler:    AlwaysSample(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// idPools holds the pre-generated identifier pools of a tracer.
type idPools struct {
	trace *IDPool[TraceID]
	span  *IDPool[SpanID]
}

// ensureIDPools returns the ID pools, creating them on first use.
// Returns nil once the tracer is shut down; pools are never created after
// Shutdown has claimed poolsLock.
func (t *Tracer) ensureIDPools() *idPools {
	if p := t.pools.Load(); p != nil {
		return p
	}

	t.poolsLock.Lock()
	defer t.poolsLock.Unlock()

	if p := t.pools.Load(); p != nil {
		return p
	}
	if t.closed.Load() {
		return nil
	}

	// Pool size based on number of CPUs for optimal contention balance.
	poolSize := runtime.NumCPU() * 100
	p := &idPools{
		trace: NewIDPool(poolSize, newTraceID),
		span:  NewIDPool(poolSize, newSpanID),
	}
	t.pools.Store(p)
	return p
}

// RegisterProcessor adds a processor and returns its registration id.
func (t *Tracer) RegisterProcessor(processor SpanProcessor) uint64 {
	return t.registerProcessor(processor)
}

// OnSpanComplete registers a handler called synchronously when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	if handler == nil {
		return 0
	}
	return t.registerProcessor(handler)
}

func (t *Tracer) registerProcessor(processor SpanProcessor) uint64 {
	if processor == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.processorsLock.Lock()
	defer t.processorsLock.Unlock()

	t.processors = append(t.processors, processorEntry{
		id:        id,
		processor: processor,
	})

	return id
}

// RemoveProcessor removes a processor by registration id. The processor is
// not shut down.
func (t *Tracer) RemoveProcessor(id uint64) {
	t.processorsLock.Lock()
	defer t.processorsLock.Unlock()

	// Preserve order
	for i, p := range t.processors {
		if p.id == id {
			copy(t.processors[i:], t.processors[i+1:])
			t.processors = t.processors[:len(t.processors)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a processor panics.
func (t *Tracer) SetPanicHook(hook func(processorID uint64, r interface{})) {
	t.processorsLock.Lock()
	defer t.processorsLock.Unlock()
	t.panicHook = hook
}

// SpanOption configures a span at creation.
type SpanOption func(*spanConfig)

type spanConfig struct {
	attrs []attribute.KeyValue
	kind  trace.SpanKind
}

// WithSpanKind sets the span kind (client, server, internal).
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(c *spanConfig) {
		c.kind = kind
	}
}

// WithAttributes sets attributes on the span at creation.
func WithAttributes(kvs ...attribute.KeyValue) SpanOption {
	return func(c *spanConfig) {
		c.attrs = append(c.attrs, kvs...)
	}
}

// CreateSpan creates a new span without activating it.
// If ctx carries an active span, local or remote, the new span joins its
// trace, inherits its sampling decision and trace state, and records it as
// parent. Otherwise the span is the root of a new trace and the sampler
// decides once whether the trace is exported.
func (t *Tracer) CreateSpan(ctx context.Context, name Key, opts ...SpanOption) *ActiveSpan {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}
	if name == "" {
		t.logger.Debug("span started without a name", zap.String("replacement", unnamedSpan))
		name = unnamedSpan
	}

	cfg := spanConfig{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(&cfg)
	}

	span := &ActiveSpan{
		tracer:    t,
		name:      name,
		kind:      cfg.kind,
		startTime: t.clock.Now(),
	}
	span.sc.SpanID = t.generateSpanID()

	// Link to parent span if present.
	if parent := SpanContextFromContext(ctx); parent.IsValid() {
		span.sc.TraceID = parent.TraceID
		span.sc.TraceFlags = parent.TraceFlags
		span.sc.TraceState = parent.TraceState
		span.parent = parent.SpanID
	} else {
		span.sc.TraceID = t.generateTraceID()
		span.sc.TraceFlags = TraceFlags(0).WithSampled(t.sampler.ShouldSample(span.sc.TraceID))
	}

	if len(cfg.attrs) > 0 {
		span.SetAttributes(cfg.attrs...)
	}

	return span
}

// StartSpan creates a new span and returns it with a context in which it is
// the active span. Child spans started from that context are its children.
func (t *Tracer) StartSpan(ctx context.Context, name Key, opts ...SpanOption) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}
	span := t.CreateSpan(ctx, name, opts...)
	return ContextWithSpan(ctx, span), span
}

// WithSpan runs fn inside a new active span and guarantees the span is
// finished on every exit path. A returned error is recorded on the span; a
// panic is recorded and re-raised after the span is finished.
func (t *Tracer) WithSpan(ctx context.Context, name Key, fn func(ctx context.Context, span *ActiveSpan) error, opts ...SpanOption) (err error) {
	ctx, span := t.StartSpan(ctx, name, opts...)
	defer func() {
		if r := recover(); r != nil {
			span.RecordError(fmt.Errorf("panic: %v", r))
			span.Finish()
			panic(r)
		}
		span.FinishWithError(err)
	}()
	return fn(ctx, span)
}

// collectSpan hands a finished span to every registered processor.
// Unsampled spans are dropped here.
func (t *Tracer) collectSpan(span Span) {
	if t.closed.Load() || !span.SpanContext.IsSampled() {
		return
	}

	t.processorsLock.RLock()
	if len(t.processors) == 0 {
		t.processorsLock.RUnlock()
		return
	}

	processors := make([]processorEntry, len(t.processors))
	copy(processors, t.processors)
	hook := t.panicHook
	t.processorsLock.RUnlock()

	for _, p := range processors {
		t.safeCall(p, hook, span)
	}
}

func (t *Tracer) safeCall(entry processorEntry, hook func(uint64, interface{}), span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("span processor panicked",
				zap.Uint64("processor_id", entry.id),
				zap.Any("panic", r),
			)
			if hook != nil {
				hook(entry.id, r)
			}
		}
	}()
	entry.processor.OnEnd(span)
}

// misuse records an operation attempted on an ended span.
func (t *Tracer) misuse(op, name string) {
	t.misuseCount.Add(1)
	t.logger.Debug("operation on ended span ignored",
		zap.String("operation", op),
		zap.String("span", name),
	)
}

// MisuseCount returns how many operations were ignored because their span
// had already ended.
func (t *Tracer) MisuseCount() uint64 {
	return t.misuseCount.Load()
}

// Resource returns the resource attached to every span.
func (t *Tracer) Resource() Resource {
	return t.resource
}

// ForceFlush asks every processor to export what it holds.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	t.processorsLock.RLock()
	processors := make([]processorEntry, len(t.processors))
	copy(processors, t.processors)
	t.processorsLock.RUnlock()

	var errs []error
	for _, p := range processors {
		if err := p.processor.ForceFlush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops span delivery, shuts every processor down within ctx and
// releases background resources. Safe to call multiple times.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.processorsLock.Lock()
	processors := t.processors
	t.processors = nil
	t.processorsLock.Unlock()

	var errs []error
	for _, p := range processors {
		if err := p.processor.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	// closed is already set, so no pool can be created past this lock.
	t.poolsLock.Lock()
	pools := t.pools.Load()
	t.poolsLock.Unlock()
	if pools != nil {
		pools.trace.Close()
		pools.span.Close()
	}

	return errors.Join(errs...)
}

// generateTraceID creates a new trace ID using the ID pool.
func (t *Tracer) generateTraceID() TraceID {
	if p := t.ensureIDPools(); p != nil {
		return p.trace.Get()
	}
	return newTraceID()
}

// generateSpanID creates a new span ID using the ID pool.
func (t *Tracer) generateSpanID() SpanID {
	if p := t.ensureIDPools(); p != nil {
		return p.span.Get()
	}
	return newSpanID()
}
