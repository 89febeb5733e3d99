package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"DEBUG": DEBUG,
		"debug": DEBUG,
		"INFO":  INFO,
		"warn":  WARN,
		"ERROR": ERROR,
		"bogus": INFO,
		"":      INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("WARN", &buf)
	l.Debugf("debug %v", 1)
	l.Infof("info %v", 2)
	l.Warnf("warn %v", 3)
	l.Errorf("error %v", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Fatalf("messages below WARN were written: %q", out)
	}
	if !strings.Contains(out, "[WARN] ") || !strings.Contains(out, "warn 3") {
		t.Fatalf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] ") || !strings.Contains(out, "error 4") {
		t.Fatalf("missing error line: %q", out)
	}
}
