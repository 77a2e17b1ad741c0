// Package zipkin exports finished spans to a Zipkin v2 collector as JSON
// over HTTP POST.
package zipkin

import (
	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.6.1"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront/tracez"
)

// Tag keys added from the span status.
const (
	StatusCodeTag = "otel.status_code"
	ErrorTag      = "error"
)

// Endpoint identifies the service that recorded a span.
type Endpoint struct {
	ServiceName string `json:"serviceName,omitempty"`
}

// Annotation is a timestamped event on a span.
type Annotation struct {
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// SpanModel is the Zipkin v2 representation of a span. Timestamps and
// durations are in microseconds.
type SpanModel struct {
	TraceID       string            `json:"traceId"`
	ID            string            `json:"id"`
	ParentID      string            `json:"parentId,omitempty"`
	Name          string            `json:"name"`
	Kind          string            `json:"kind,omitempty"`
	Timestamp     int64             `json:"timestamp"`
	Duration      int64             `json:"duration"`
	LocalEndpoint *Endpoint         `json:"localEndpoint,omitempty"`
	Annotations   []Annotation      `json:"annotations,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// FromSpans converts a batch of finished spans.
func FromSpans(spans []tracez.Span) []SpanModel {
	models := make([]SpanModel, 0, len(spans))
	for i := range spans {
		models = append(models, FromSpan(spans[i]))
	}
	return models
}

// FromSpan converts one finished span.
func FromSpan(s tracez.Span) SpanModel {
	m := SpanModel{
		TraceID:   s.TraceID().String(),
		ID:        s.SpanID().String(),
		Name:      s.Name,
		Kind:      kind(s.Kind),
		Timestamp: s.StartTime.UnixMicro(),
		Duration:  s.Duration.Microseconds(),
		Tags:      tags(s),
	}
	if s.HasParent() {
		m.ParentID = s.ParentSpanID.String()
	}
	if name := s.Resource.ServiceName(); name != "" {
		m.LocalEndpoint = &Endpoint{ServiceName: name}
	}
	for _, e := range s.Events {
		m.Annotations = append(m.Annotations, Annotation{
			Timestamp: e.Time.UnixMicro(),
			Value:     annotationValue(e),
		})
	}
	return m
}

func kind(k trace.SpanKind) string {
	switch k {
	case trace.SpanKindClient:
		return "CLIENT"
	case trace.SpanKindServer:
		return "SERVER"
	case trace.SpanKindProducer:
		return "PRODUCER"
	case trace.SpanKindConsumer:
		return "CONSUMER"
	default:
		return ""
	}
}

func tags(s tracez.Span) map[string]string {
	out := make(map[string]string, len(s.Attributes)+4)
	for _, kv := range s.Resource.Attributes() {
		if kv.Key == semconv.ServiceNameKey {
			continue
		}
		out[string(kv.Key)] = kv.Value.Emit()
	}
	for _, kv := range s.Attributes {
		out[string(kv.Key)] = kv.Value.Emit()
	}

	switch s.Status.Code {
	case codes.Ok:
		out[StatusCodeTag] = "OK"
	case codes.Error:
		out[StatusCodeTag] = "ERROR"
		msg := s.Status.Description
		if msg == "" {
			msg = "true"
		}
		out[ErrorTag] = msg
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// annotationValue renders an event as "name" or `name: {"k":"v"}`.
func annotationValue(e tracez.Event) string {
	if len(e.Attributes) == 0 {
		return e.Name
	}
	fields := make(map[string]any, len(e.Attributes))
	for _, kv := range e.Attributes {
		fields[string(kv.Key)] = attributeValue(kv.Value)
	}
	data, err := sonic.ConfigStd.Marshal(fields)
	if err != nil {
		return e.Name
	}
	return e.Name + ": " + string(data)
}

func attributeValue(v attribute.Value) any {
	switch v.Type() {
	case attribute.BOOL:
		return v.AsBool()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.STRING:
		return v.AsString()
	default:
		return v.Emit()
	}
}
