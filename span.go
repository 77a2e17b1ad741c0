package tracez

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.6.1"
	"go.opentelemetry.io/otel/trace"
)

// Event is a named, timestamped annotation recorded on a span.
type Event struct {
	Time       time.Time
	Name       string
	Attributes []attribute.KeyValue
}

// Span is the immutable record of a finished operation. It is what
// processors and exporters receive; they must treat it as read-only.
//
//nolint:govet // Field order follows export order, not alignment
type Span struct {
	SpanContext  SpanContext
	ParentSpanID SpanID
	Name         string
	Kind         trace.SpanKind
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Attributes   []attribute.KeyValue // sorted by key
	Events       []Event
	Status       Status
	Resource     Resource
}

// TraceID returns the trace id of the span.
func (s Span) TraceID() TraceID { return s.SpanContext.TraceID }

// SpanID returns the span id of the span.
func (s Span) SpanID() SpanID { return s.SpanContext.SpanID }

// HasParent reports whether the span has a parent span id.
func (s Span) HasParent() bool { return s.ParentSpanID.IsValid() }

// Attribute looks up an attribute by key.
func (s Span) Attribute(key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// clone deep copies the slices so the copy can outlive the original.
func (s Span) clone() Span {
	out := s
	out.Attributes = slices.Clone(s.Attributes)
	if s.Events != nil {
		out.Events = make([]Event, len(s.Events))
		for i, e := range s.Events {
			out.Events[i] = Event{Time: e.Time, Name: e.Name, Attributes: slices.Clone(e.Attributes)}
		}
	}
	return out
}

// ActiveSpan is a span that is still being recorded.
// Safe for concurrent use by multiple goroutines. All methods are no-ops on
// a nil *ActiveSpan, so the result of SpanFromContext can be used directly.
//
//nolint:govet // Field order optimized for readability
type ActiveSpan struct {
	tracer    *Tracer
	sc        SpanContext
	parent    SpanID
	name      string
	kind      trace.SpanKind
	startTime time.Time
	endTime   time.Time
	attrs     map[attribute.Key]attribute.Value
	events    []Event
	status    Status
	ended     bool
	mu        sync.Mutex
}

// SpanContext returns the identity of this span.
func (a *ActiveSpan) SpanContext() SpanContext {
	if a == nil {
		return SpanContext{}
	}
	// Immutable after creation.
	return a.sc
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() TraceID {
	return a.SpanContext().TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() SpanID {
	return a.SpanContext().SpanID
}

// ParentSpanID returns the parent span id, zero for a root span.
func (a *ActiveSpan) ParentSpanID() SpanID {
	if a == nil {
		return SpanID{}
	}
	return a.parent
}

// Name returns the operation name.
func (a *ActiveSpan) Name() string {
	if a == nil {
		return ""
	}
	return a.name
}

// IsRecording reports whether the span still accepts mutations.
func (a *ActiveSpan) IsRecording() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.ended
}

// StartTime returns the time the span was created.
func (a *ActiveSpan) StartTime() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.startTime
}

// EndTime returns the time the span was finished, zero while recording.
func (a *ActiveSpan) EndTime() time.Time {
	if a == nil {
		return time.Time{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endTime
}

// Status returns the current status.
func (a *ActiveSpan) Status() Status {
	if a == nil {
		return Status{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SetAttributes sets attributes on the span. Last write for a key wins.
// Ignored once the span has ended.
func (a *ActiveSpan) SetAttributes(kvs ...attribute.KeyValue) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		a.tracer.misuse("set_attributes", a.name)
		return
	}

	if a.attrs == nil {
		a.attrs = make(map[attribute.Key]attribute.Value, len(kvs))
	}
	for _, kv := range kvs {
		if !kv.Valid() {
			continue
		}
		a.attrs[kv.Key] = kv.Value
	}
}

// SetTag adds a string attribute to the span.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	a.SetAttributes(attribute.String(key, value))
}

// SetIntTag adds an integer attribute to the span.
func (a *ActiveSpan) SetIntTag(key Tag, value int64) {
	a.SetAttributes(attribute.Int64(key, value))
}

// SetFloatTag adds a floating point attribute to the span.
func (a *ActiveSpan) SetFloatTag(key Tag, value float64) {
	a.SetAttributes(attribute.Float64(key, value))
}

// SetBoolTag adds a boolean attribute to the span.
func (a *ActiveSpan) SetBoolTag(key Tag, value bool) {
	a.SetAttributes(attribute.Bool(key, value))
}

// GetAttribute retrieves an attribute value by key.
func (a *ActiveSpan) GetAttribute(key Tag) (attribute.Value, bool) {
	if a == nil {
		return attribute.Value{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	value, ok := a.attrs[attribute.Key(key)]
	return value, ok
}

// GetTag retrieves an attribute rendered as a string.
func (a *ActiveSpan) GetTag(key Tag) (string, bool) {
	value, ok := a.GetAttribute(key)
	if !ok {
		return "", false
	}
	return value.Emit(), true
}

// AddEvent appends a named event timestamped now.
func (a *ActiveSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	if a == nil {
		return
	}
	now := a.tracer.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		a.tracer.misuse("add_event", a.name)
		return
	}
	a.events = append(a.events, Event{
		Time:       now,
		Name:       name,
		Attributes: slices.Clone(attrs),
	})
}

// SetStatus sets the span status. The last call wins until Error is set;
// after that the status no longer changes, so the first error is kept.
// The description is only recorded for Error.
func (a *ActiveSpan) SetStatus(code codes.Code, description string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		a.tracer.misuse("set_status", a.name)
		return
	}
	if a.status.Code == codes.Error {
		return
	}
	if code != codes.Error {
		description = ""
	}
	a.status = Status{Code: code, Description: description}
}

// RecordError adds an exception event and sets the Error status.
// A nil error is ignored.
func (a *ActiveSpan) RecordError(err error) {
	if a == nil || err == nil {
		return
	}
	a.AddEvent(semconv.ExceptionEventName,
		semconv.ExceptionTypeKey.String(errorType(err)),
		semconv.ExceptionMessageKey.String(err.Error()),
	)
	a.SetStatus(codes.Error, err.Error())
}

func errorType(err error) string {
	t := fmt.Sprintf("%T", err)
	return strings.TrimPrefix(t, "*")
}

// Finish completes the span and hands a snapshot to the tracer's processors.
// Safe to call multiple times - subsequent calls are no-ops and do not change
// the recorded end time.
func (a *ActiveSpan) Finish() {
	if a == nil {
		return
	}
	a.mu.Lock()

	// Prevent double-finishing.
	if a.ended {
		a.mu.Unlock()
		a.tracer.misuse("finish", a.name)
		return
	}

	end := a.tracer.clock.Now()
	if end.Before(a.startTime) {
		end = a.startTime
	}
	a.endTime = end
	a.ended = true
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	a.tracer.collectSpan(snapshot)
}

// FinishWithError records err, if any, and finishes the span.
func (a *ActiveSpan) FinishWithError(err error) {
	a.RecordError(err)
	a.Finish()
}

// Context creates a new context with this span as the active span.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	return ContextWithSpan(parent, a)
}

// snapshotLocked copies the span state. Caller holds a.mu.
func (a *ActiveSpan) snapshotLocked() Span {
	attrs := make([]attribute.KeyValue, 0, len(a.attrs))
	for k, v := range a.attrs {
		attrs = append(attrs, attribute.KeyValue{Key: k, Value: v})
	}
	slices.SortFunc(attrs, func(x, y attribute.KeyValue) int {
		return strings.Compare(string(x.Key), string(y.Key))
	})

	var events []Event
	if len(a.events) > 0 {
		events = make([]Event, len(a.events))
		copy(events, a.events)
	}

	return Span{
		SpanContext:  a.sc,
		ParentSpanID: a.parent,
		Name:         a.name,
		Kind:         a.kind,
		StartTime:    a.startTime,
		EndTime:      a.endTime,
		Duration:     a.endTime.Sub(a.startTime),
		Attributes:   attrs,
		Events:       events,
		Status:       a.status,
		Resource:     a.tracer.resource,
	}
}
