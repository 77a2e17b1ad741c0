package tracez

// SpanContext is the immutable identity of a span that crosses process
// boundaries: trace and span ids, flags and vendor trace state.
type SpanContext struct {
	TraceState TraceState
	TraceID    TraceID
	SpanID     SpanID
	TraceFlags TraceFlags
}

// IsValid reports whether both ids are non-zero.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID.IsValid() && sc.SpanID.IsValid()
}

// IsSampled reports whether the sampled flag is set.
func (sc SpanContext) IsSampled() bool {
	return sc.TraceFlags.IsSampled()
}

// Equal compares ids, flags and trace state entry by entry.
func (sc SpanContext) Equal(other SpanContext) bool {
	return sc.TraceID == other.TraceID &&
		sc.SpanID == other.SpanID &&
		sc.TraceFlags == other.TraceFlags &&
		sc.TraceState.Equal(other.TraceState)
}
