package otel

import "testing"

func TestParseTrace(t *testing.T) {
	for v, want := range map[string]bool{
		"":      false,
		"0":     false,
		"false": false,
		"1":     true,
		"true":  true,
		"yes":   true,
	} {
		if got := parseTrace(v); got != want {
			t.Errorf("parseTrace(%q) = %v, want %v", v, got, want)
		}
	}
}

func TestSetTrace(t *testing.T) {
	orig := TraceEnabled()
	defer SetTrace(orig)

	SetTrace(true)
	if !TraceEnabled() {
		t.Error("tracing should be on")
	}
	SetTrace(false)
	if TraceEnabled() {
		t.Error("tracing should be off")
	}
}
