package tracez

import (
	"encoding/binary"
	"math"
)

// Sampler decides, once per trace root, whether the trace is exported.
// Children never consult the sampler; they inherit the parent's flag.
type Sampler interface {
	ShouldSample(id TraceID) bool
}

type alwaysSampler struct{}

func (alwaysSampler) ShouldSample(TraceID) bool { return true }

type neverSampler struct{}

func (neverSampler) ShouldSample(TraceID) bool { return false }

// AlwaysSample samples every trace.
func AlwaysSample() Sampler { return alwaysSampler{} }

// NeverSample samples no trace.
func NeverSample() Sampler { return neverSampler{} }

type ratioSampler struct {
	bound uint64
}

func (s ratioSampler) ShouldSample(id TraceID) bool {
	x := binary.BigEndian.Uint64(id[8:16]) >> 1
	return x < s.bound
}

// TraceIDRatioBased samples the given fraction of traces. The decision is a
// function of the trace id, so every process agrees on it.
// Rates >= 1 sample everything, rates <= 0 nothing.
func TraceIDRatioBased(rate float64) Sampler {
	if rate >= 1 {
		return AlwaysSample()
	}
	if rate <= 0 || math.IsNaN(rate) {
		return NeverSample()
	}
	return ratioSampler{bound: uint64(rate * (1 << 63))}
}
