package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"

	pionlogging "github.com/pion/logging"
)

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
	level            = slog.LevelError
)

// Init installs the default text logger on stderr.
func Init() {
	InitWriter(os.Stderr)
}

// InitFile sends all logs to path, appending. The TUI uses it so log lines
// do not tear the screen.
func InitFile(path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	InitWriter(f)
	return f, nil
}

// InitWriter installs the default text logger on w with the level taken
// from LOG_LEVEL.
func InitWriter(w io.Writer) {
	lvl := ParseLevel(os.Getenv("LOG_LEVEL"), slog.LevelError) // default: production only shows errors

	mu.Lock()
	output = w
	level = lvl
	mu.Unlock()

	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: lvl,
		}),
	)
	slog.SetDefault(logger)
}

// ParseLevel maps a LOG_LEVEL value to a slog level, falling back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch s {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return def
	}
}

// PionLoggerFactory returns a pion logger factory writing to the same
// destination and level as the slog default.
func PionLoggerFactory() *pionlogging.DefaultLoggerFactory {
	mu.Lock()
	w, lvl := output, level
	mu.Unlock()

	f := pionlogging.NewDefaultLoggerFactory()
	f.Writer = w
	switch {
	case lvl <= slog.LevelDebug:
		f.DefaultLogLevel = pionlogging.LogLevelDebug
	case lvl <= slog.LevelInfo:
		f.DefaultLogLevel = pionlogging.LogLevelInfo
	case lvl <= slog.LevelWarn:
		f.DefaultLogLevel = pionlogging.LogLevelWarn
	default:
		f.DefaultLogLevel = pionlogging.LogLevelError
	}
	return f
}
