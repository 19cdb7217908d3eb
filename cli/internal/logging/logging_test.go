package logging

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	pionlogging "github.com/pion/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"dev", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"prod", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, slog.LevelInfo); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitWriterSharesLevelWithPion(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	InitWriter(&buf)
	slog.Debug("session created", "peer", "peer-b")
	if !strings.Contains(buf.String(), "peer=peer-b") {
		t.Fatalf("log output = %q", buf.String())
	}

	f := PionLoggerFactory()
	if f.DefaultLogLevel != pionlogging.LogLevelDebug {
		t.Fatalf("pion level = %v, want debug", f.DefaultLogLevel)
	}
	if f.Writer != &buf {
		t.Fatalf("pion writer not shared")
	}
}

func TestInitFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	closer, err := InitFile(filepath.Join(t.TempDir(), "warpchat.log"))
	if err != nil {
		t.Fatalf("InitFile: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := InitFile(filepath.Join(t.TempDir(), "missing", "warpchat.log")); err == nil {
		t.Fatalf("InitFile into missing directory succeeded")
	}
}
