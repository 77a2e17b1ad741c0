package tracez

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"
)

// Header names used on the wire.
const (
	TraceParentHeader = "traceparent"
	TraceStateHeader  = "tracestate"
)

const (
	traceparentVersion = "00"
	// version(2) + traceid(32) + spanid(16) + flags(2) + 3 separators.
	traceparentLength = 55
)

// Carrier is the header storage a propagator reads from and writes to.
type Carrier interface {
	Get(key string) string
	Set(key, value string)
}

// MapCarrier is a Carrier backed by a plain map. Set stores keys in lower
// case. Get prefers an exact match, then the lower-case key, then the
// lexically smallest case-insensitive match, so lookups on maps built by
// hand are deterministic.
type MapCarrier map[string]string

// Get returns the value for key.
func (c MapCarrier) Get(key string) string {
	if v, ok := c[key]; ok {
		return v
	}
	lower := strings.ToLower(key)
	if v, ok := c[lower]; ok {
		return v
	}
	var match string
	found := false
	for k := range c {
		if strings.EqualFold(k, key) && (!found || k < match) {
			match, found = k, true
		}
	}
	if !found {
		return ""
	}
	return c[match]
}

// Set stores value under the lower-case form of key.
func (c MapCarrier) Set(key, value string) {
	c[strings.ToLower(key)] = value
}

// HeaderCarrier adapts http.Header to the Carrier interface.
type HeaderCarrier http.Header

// Get returns the first value for key.
func (c HeaderCarrier) Get(key string) string {
	return http.Header(c).Get(key)
}

// Set replaces the values for key.
func (c HeaderCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// TraceContext propagates span contexts using the traceparent and
// tracestate headers.
type TraceContext struct{}

// Inject writes sc into carrier. Invalid span contexts write nothing; an
// empty trace state writes no tracestate header.
func (TraceContext) Inject(sc SpanContext, carrier Carrier) {
	if carrier == nil || !sc.IsValid() {
		return
	}
	carrier.Set(TraceParentHeader, formatTraceParent(sc))
	if ts := sc.TraceState.String(); ts != "" {
		carrier.Set(TraceStateHeader, ts)
	}
}

// Headers returns the headers for sc as a new map.
func (p TraceContext) Headers(sc SpanContext) MapCarrier {
	carrier := MapCarrier{}
	p.Inject(sc, carrier)
	return carrier
}

// Extract reads a span context from carrier. Any malformed or missing
// traceparent yields false; the caller then starts a new trace.
func (TraceContext) Extract(carrier Carrier) (SpanContext, bool) {
	if carrier == nil {
		return SpanContext{}, false
	}
	sc, ok := parseTraceParent(strings.TrimSpace(carrier.Get(TraceParentHeader)))
	if !ok {
		return SpanContext{}, false
	}
	sc.TraceState = ParseTraceState(carrier.Get(TraceStateHeader))
	return sc, true
}

// InjectContext writes the active span of ctx, if any, into carrier.
func (p TraceContext) InjectContext(ctx context.Context, carrier Carrier) {
	p.Inject(SpanContextFromContext(ctx), carrier)
}

// ExtractContext returns ctx with the extracted span context as remote
// parent. When the carrier holds no valid context, ctx is returned as is.
func (p TraceContext) ExtractContext(ctx context.Context, carrier Carrier) context.Context {
	sc, ok := p.Extract(carrier)
	if !ok {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return ContextWithRemoteSpanContext(ctx, sc)
}

func formatTraceParent(sc SpanContext) string {
	var b strings.Builder
	b.Grow(traceparentLength)
	b.WriteString(traceparentVersion)
	b.WriteByte('-')
	b.WriteString(sc.TraceID.String())
	b.WriteByte('-')
	b.WriteString(sc.SpanID.String())
	b.WriteByte('-')
	b.WriteString(hex.EncodeToString([]byte{byte(sc.TraceFlags)}))
	return b.String()
}

func parseTraceParent(h string) (SpanContext, bool) {
	if len(h) != traceparentLength {
		return SpanContext{}, false
	}
	parts := strings.Split(h, "-")
	if len(parts) != 4 || parts[0] != traceparentVersion {
		return SpanContext{}, false
	}

	traceID, err := TraceIDFromHex(parts[1])
	if err != nil {
		return SpanContext{}, false
	}
	spanID, err := SpanIDFromHex(parts[2])
	if err != nil {
		return SpanContext{}, false
	}
	if len(parts[3]) != 2 || !isLowerHex(parts[3]) {
		return SpanContext{}, false
	}
	flags, err := hex.DecodeString(parts[3])
	if err != nil {
		return SpanContext{}, false
	}

	return SpanContext{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: TraceFlags(flags[0]),
	}, true
}
