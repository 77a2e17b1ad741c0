package tracez

import (
	"errors"
	"strings"
)

const (
	traceStateSeparator = ";"
	traceStateKVSep     = "="
)

var errTraceStateMember = errors.New("tracez: invalid tracestate member")

// TraceStateEntry is one vendor key=value member of a TraceState.
type TraceStateEntry struct {
	Key   string
	Value string
}

// TraceState is an immutable, ordered list of vendor entries propagated with
// a SpanContext. Keys are case-sensitive and unique; values are opaque.
type TraceState struct {
	entries []TraceStateEntry
}

// ParseTraceState decodes a semicolon separated key=value list.
// Members keep their received order. Malformed members are skipped. A
// duplicate key keeps the position of its first occurrence and the value of
// its last one.
func ParseTraceState(s string) TraceState {
	var ts TraceState
	for _, member := range strings.Split(s, traceStateSeparator) {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		key, value, ok := strings.Cut(member, traceStateKVSep)
		if !ok || !validTraceStateKey(key) || !validTraceStateValue(value) {
			continue
		}
		if i := ts.index(key); i >= 0 {
			ts.entries[i].Value = value
			continue
		}
		ts.entries = append(ts.entries, TraceStateEntry{Key: key, Value: value})
	}
	return ts
}

func validTraceStateKey(key string) bool {
	if key == "" {
		return false
	}
	return !strings.ContainsAny(key, " \t;=,")
}

// validTraceStateValue rejects separators and surrounding whitespace, which
// ParseTraceState trims from every member.
func validTraceStateValue(value string) bool {
	if strings.ContainsAny(value, ";\r\n") {
		return false
	}
	return strings.TrimSpace(value) == value
}

func (ts TraceState) index(key string) int {
	for i, e := range ts.entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// String encodes the entries in order, separated by semicolons.
func (ts TraceState) String() string {
	if len(ts.entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range ts.entries {
		if i > 0 {
			b.WriteString(traceStateSeparator)
		}
		b.WriteString(e.Key)
		b.WriteString(traceStateKVSep)
		b.WriteString(e.Value)
	}
	return b.String()
}

// Get returns the value stored under key.
func (ts TraceState) Get(key string) (string, bool) {
	if i := ts.index(key); i >= 0 {
		return ts.entries[i].Value, true
	}
	return "", false
}

// Len returns the number of entries.
func (ts TraceState) Len() int {
	return len(ts.entries)
}

// Entries returns a copy of the entries in order.
func (ts TraceState) Entries() []TraceStateEntry {
	if len(ts.entries) == 0 {
		return nil
	}
	out := make([]TraceStateEntry, len(ts.entries))
	copy(out, ts.entries)
	return out
}

// Insert returns a TraceState with key set to value. An existing key keeps
// its position; a new key is appended.
func (ts TraceState) Insert(key, value string) (TraceState, error) {
	if !validTraceStateKey(key) || !validTraceStateValue(value) {
		return ts, errTraceStateMember
	}
	entries := ts.Entries()
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Value = value
			return TraceState{entries: entries}, nil
		}
	}
	return TraceState{entries: append(entries, TraceStateEntry{Key: key, Value: value})}, nil
}

// Delete returns a TraceState without key.
func (ts TraceState) Delete(key string) TraceState {
	i := ts.index(key)
	if i < 0 {
		return ts
	}
	entries := make([]TraceStateEntry, 0, len(ts.entries)-1)
	entries = append(entries, ts.entries[:i]...)
	entries = append(entries, ts.entries[i+1:]...)
	return TraceState{entries: entries}
}

// Equal reports whether both states hold the same entries in the same order.
func (ts TraceState) Equal(other TraceState) bool {
	if len(ts.entries) != len(other.entries) {
		return false
	}
	for i := range ts.entries {
		if ts.entries[i] != other.entries[i] {
			return false
		}
	}
	return true
}
