package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestServiceApplySwapsLevel(t *testing.T) {
	var buf bytes.Buffer
	svc, log := NewWithWriter(Config{Level: "warn", Console: true}, &buf)
	defer svc.Close()

	log.Info("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}

	svc.Apply(Config{Level: "debug", Console: true})
	log.With(String("comp", "test")).Debug("visible", Int("n", 3))
	out := buf.String()
	if !strings.Contains(out, "visible") || !strings.Contains(out, "comp") || !strings.Contains(out, "test") {
		t.Fatalf("missing debug line after Apply: %q", out)
	}
	if !log.Enabled(LevelDebug) {
		t.Fatalf("Enabled(debug) = false after Apply")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("ignored", Err(nil))
	if Nop().IsZero() {
		t.Fatalf("Nop should not be zero")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace":   LevelTrace,
		" DEBUG ": LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in, LevelInfo); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
