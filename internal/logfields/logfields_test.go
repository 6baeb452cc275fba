package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames guards against key drift, which would break log ingestion.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name string
		attr slog.Attr
		key  string
		val  string
	}{
		{"RunID", RunID("abc"), KeyRunID, "abc"},
		{"Phase", Phase("gtrns"), KeyPhase, "gtrns"},
		{"Role", Role("gen"), KeyRole, "gen"},
		{"Path", Path("/tmp/x"), KeyPath, "/tmp/x"},
		{"Tick", Tick(50), KeyTick, "50"},
		{"Iteration", Iteration(7), KeyIteration, "7"},
		{"Resolution", Resolution(3.25), KeyResolution, "3.25"},
	}
	for _, tc := range cases {
		if tc.attr.Key != tc.key {
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.key, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.val {
			t.Fatalf("%s: expected value %s, got %s", tc.name, tc.val, got)
		}
	}
}

func TestErrorHelper(t *testing.T) {
	if got := Error(nil).Value.String(); got != "" {
		t.Fatalf("expected empty string for nil error, got %q", got)
	}
	if got := Error(errors.New("boom")).Value.String(); got != "boom" {
		t.Fatalf("expected boom, got %q", got)
	}
}
