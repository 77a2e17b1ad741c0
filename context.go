package tracez

import (
	"context"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType struct{}

var bundleKey bundleKeyType

// contextBundle holds either a local active span or a remote parent
// extracted from a carrier, so a single context value answers both lookups.
type contextBundle struct {
	span   *ActiveSpan
	remote SpanContext
}

// ContextWithSpan returns a child of ctx in which span is the active span.
// The parent context is untouched: dropping the returned context restores
// the previous active span.
func ContextWithSpan(ctx context.Context, span *ActiveSpan) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if span == nil {
		return ctx
	}
	return context.WithValue(ctx, bundleKey, &contextBundle{span: span})
}

// ContextWithRemoteSpanContext returns a child of ctx whose parent is a span
// from another process. Invalid span contexts leave ctx unchanged.
func ContextWithRemoteSpanContext(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if !sc.IsValid() {
		return ctx
	}
	return context.WithValue(ctx, bundleKey, &contextBundle{remote: sc})
}

// SpanFromContext extracts the active local span from a context.
// Returns nil if no local span is present.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.span
	}
	return nil
}

// SpanContextFromContext returns the identity of the active span, local or
// remote. The zero SpanContext is returned when there is none.
func SpanContextFromContext(ctx context.Context) SpanContext {
	if ctx == nil {
		return SpanContext{}
	}
	bundle, ok := ctx.Value(bundleKey).(*contextBundle)
	if !ok {
		return SpanContext{}
	}
	if bundle.span != nil {
		return bundle.span.SpanContext()
	}
	return bundle.remote
}
