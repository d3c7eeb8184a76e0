package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("output contains messages below level: %q", out)
	}
	if !strings.Contains(out, "fhirobject [WARN] warn 3") {
		t.Errorf("output = %q; want WARN line", out)
	}
	if !strings.Contains(out, "fhirobject [ERROR] error 4") {
		t.Errorf("output = %q; want ERROR line", out)
	}
}

func TestLogger_Named(t *testing.T) {
	var buf bytes.Buffer
	parent := New(&buf, LevelInfo)
	child := parent.Named("decoder")

	child.Info("hello")
	if !strings.Contains(buf.String(), "fhirobject/decoder [INFO] hello") {
		t.Errorf("output = %q; want named prefix", buf.String())
	}

	buf.Reset()
	parent.SetLevel(LevelError)
	child.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("child wrote %q after parent level change", buf.String())
	}
}

func TestLogger_Enabled(t *testing.T) {
	l := New(&bytes.Buffer{}, LevelInfo)
	if l.Enabled(LevelDebug) {
		t.Error("Enabled(Debug) = true; want false")
	}
	if !l.Enabled(LevelWarn) {
		t.Error("Enabled(Warn) = false; want true")
	}
	l.SetLevel(LevelNone)
	if l.Enabled(LevelError) {
		t.Error("Enabled(Error) = true after LevelNone; want false")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"off", LevelNone, false},
		{"", LevelInfo, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v; wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
