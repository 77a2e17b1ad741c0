package tracez

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	mrand "math/rand/v2"

	"go.opentelemetry.io/otel/trace"
)

// TraceID is the 128-bit identifier shared by every span of one trace.
type TraceID = trace.TraceID

// SpanID is the 64-bit identifier of a single span within its trace.
type SpanID = trace.SpanID

// TraceFlags carries the trace-level flags; bit 0 is the sampled flag.
type TraceFlags = trace.TraceFlags

// FlagsSampled marks a trace whose spans are exported.
const FlagsSampled = trace.FlagsSampled

var (
	errIDLength = errors.New("tracez: invalid id length")
	errIDHex    = errors.New("tracez: id is not lowercase hex")
	errIDZero   = errors.New("tracez: id is all zeros")
)

// TraceIDFromHex parses a 32 character lowercase hex trace id.
func TraceIDFromHex(s string) (TraceID, error) {
	var id TraceID
	if err := decodeHexID(id[:], s); err != nil {
		return TraceID{}, err
	}
	return id, nil
}

// SpanIDFromHex parses a 16 character lowercase hex span id.
func SpanIDFromHex(s string) (SpanID, error) {
	var id SpanID
	if err := decodeHexID(id[:], s); err != nil {
		return SpanID{}, err
	}
	return id, nil
}

func decodeHexID(dst []byte, s string) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return errIDLength
	}
	if !isLowerHex(s) {
		return errIDHex
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return errIDHex
	}
	for _, b := range dst {
		if b != 0 {
			return nil
		}
	}
	return errIDZero
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// newTraceID returns a random non-zero trace id.
func newTraceID() TraceID {
	var id TraceID
	for !id.IsValid() {
		fillRandom(id[:])
	}
	return id
}

// newSpanID returns a random non-zero span id.
func newSpanID() SpanID {
	var id SpanID
	for !id.IsValid() {
		fillRandom(id[:])
	}
	return id
}

// fillRandom reads from crypto/rand and falls back to math/rand/v2 if the
// system source fails.
func fillRandom(b []byte) {
	if _, err := rand.Read(b); err == nil {
		return
	}
	for i := 0; i < len(b); i += 8 {
		var word [8]byte
		binary.LittleEndian.PutUint64(word[:], mrand.Uint64())
		copy(b[i:], word[:])
	}
}
