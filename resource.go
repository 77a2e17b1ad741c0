package tracez

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.6.1"
)

// Resource describes the process producing spans. Its attributes are
// attached to every exported span.
type Resource struct {
	attrs attribute.Set
}

// NewResource builds a resource with service.name, service.version and any
// extra attributes. Empty name or version are omitted.
func NewResource(serviceName, serviceVersion string, extra ...attribute.KeyValue) Resource {
	kvs := make([]attribute.KeyValue, 0, len(extra)+2)
	kvs = append(kvs, extra...)
	if serviceName != "" {
		kvs = append(kvs, semconv.ServiceNameKey.String(serviceName))
	}
	if serviceVersion != "" {
		kvs = append(kvs, semconv.ServiceVersionKey.String(serviceVersion))
	}
	return Resource{attrs: attribute.NewSet(kvs...)}
}

// ServiceName returns the service.name attribute.
func (r Resource) ServiceName() string {
	if v, ok := r.attrs.Value(semconv.ServiceNameKey); ok {
		return v.AsString()
	}
	return ""
}

// ServiceVersion returns the service.version attribute.
func (r Resource) ServiceVersion() string {
	if v, ok := r.attrs.Value(semconv.ServiceVersionKey); ok {
		return v.AsString()
	}
	return ""
}

// Attributes returns the resource attributes sorted by key.
func (r Resource) Attributes() []attribute.KeyValue {
	return r.attrs.ToSlice()
}
