package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var Log *slog.Logger

var initMu sync.Mutex

// ParseLevel maps a config level string onto a slog level. Unknown values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the process logger writing text records to stdout.
func Init(level string) {
	InitWithWriter(level, os.Stdout)
}

// InitWithWriter installs the process logger on w. Tests use it to capture
// output.
func InitWithWriter(level string, w io.Writer) {
	initMu.Lock()
	defer initMu.Unlock()
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Sync is kept for symmetry with Init; the text handler writes synchronously.
func Sync() {}

func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}

// LogConfigSummary prints a block of summary lines under a single event name.
func LogConfigSummary(event string, items []string) {
	if Log == nil {
		return
	}
	Log.Info(event, "summary", strings.Join(items, "; "))
}
