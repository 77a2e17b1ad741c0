package tracez

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTraceState(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []TraceStateEntry
		encoded  string
	}{
		{name: "empty", input: "", expected: nil, encoded: ""},
		{
			name:     "single",
			input:    "vendor=a",
			expected: []TraceStateEntry{{Key: "vendor", Value: "a"}},
			encoded:  "vendor=a",
		},
		{
			name:     "keeps order",
			input:    "z=1;a=2;m=3",
			expected: []TraceStateEntry{{Key: "z", Value: "1"}, {Key: "a", Value: "2"}, {Key: "m", Value: "3"}},
			encoded:  "z=1;a=2;m=3",
		},
		{
			name:     "duplicate keeps first position and last value",
			input:    "a=1;b=2;a=3",
			expected: []TraceStateEntry{{Key: "a", Value: "3"}, {Key: "b", Value: "2"}},
			encoded:  "a=3;b=2",
		},
		{
			name:     "skips malformed members",
			input:    "good=1;novalue;=empty;;bad key=2;also=ok",
			expected: []TraceStateEntry{{Key: "good", Value: "1"}, {Key: "also", Value: "ok"}},
			encoded:  "good=1;also=ok",
		},
		{
			name:     "trims whitespace around members",
			input:    " a=1 ; b=2 ",
			expected: []TraceStateEntry{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}},
			encoded:  "a=1;b=2",
		},
		{
			name:     "skips values with inner padding",
			input:    "a= 1;b=2",
			expected: []TraceStateEntry{{Key: "b", Value: "2"}},
			encoded:  "b=2",
		},
		{
			name:     "empty value allowed",
			input:    "flag=",
			expected: []TraceStateEntry{{Key: "flag", Value: ""}},
			encoded:  "flag=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := ParseTraceState(tt.input)
			if diff := cmp.Diff(tt.expected, ts.Entries()); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}
			if got := ts.String(); got != tt.encoded {
				t.Errorf("Expected encoding %q, got %q", tt.encoded, got)
			}
			if !ParseTraceState(ts.String()).Equal(ts) {
				t.Error("Expected encoding to round trip")
			}
		})
	}
}

func TestTraceStateInsert(t *testing.T) {
	ts := ParseTraceState("a=1;b=2")

	updated, err := ts.Insert("a", "9")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if updated.String() != "a=9;b=2" {
		t.Errorf("Expected existing key to keep position, got %s", updated.String())
	}

	appended, err := updated.Insert("c", "3")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if appended.String() != "a=9;b=2;c=3" {
		t.Errorf("Expected new key appended, got %s", appended.String())
	}

	// The receiver is immutable.
	if ts.String() != "a=1;b=2" {
		t.Errorf("Expected original unchanged, got %s", ts.String())
	}

	for _, bad := range [][2]string{{"", "v"}, {"k=x", "v"}, {"k", "a;b"}} {
		if _, err := ts.Insert(bad[0], bad[1]); err == nil {
			t.Errorf("Expected error inserting %q=%q", bad[0], bad[1])
		}
	}
}

func TestTraceStateDeleteAndGet(t *testing.T) {
	ts := ParseTraceState("a=1;b=2;c=3")

	deleted := ts.Delete("b")
	if deleted.String() != "a=1;c=3" {
		t.Errorf("Expected a=1;c=3, got %s", deleted.String())
	}
	if ts.Len() != 3 {
		t.Errorf("Expected original to keep 3 entries, got %d", ts.Len())
	}
	if same := ts.Delete("missing"); !same.Equal(ts) {
		t.Error("Expected deleting a missing key to be a no-op")
	}

	if v, ok := ts.Get("c"); !ok || v != "3" {
		t.Errorf("Expected c=3, got %q %v", v, ok)
	}
	if _, ok := deleted.Get("b"); ok {
		t.Error("Expected b to be gone")
	}
}

func TestTraceStateEqual(t *testing.T) {
	if !ParseTraceState("a=1;b=2").Equal(ParseTraceState("a=1;b=2")) {
		t.Error("Expected equal states")
	}
	if ParseTraceState("a=1;b=2").Equal(ParseTraceState("b=2;a=1")) {
		t.Error("Expected order to matter")
	}
	if !(TraceState{}).Equal(ParseTraceState("")) {
		t.Error("Expected empty states to be equal")
	}
}
