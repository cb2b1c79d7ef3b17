// Package logger provides the process-wide structured logger.
//
// Records are written as JSON to a rotating file so that query output on
// stdout stays clean. Warnings and errors are also kept in memory so the CLI
// can tell the operator that something was logged.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is a captured WARN or ERROR record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// String formats the entry for terminal display.
func (e Entry) String() string {
	return fmt.Sprintf("%s %-5s %s", e.Time.Format("15:04:05"), e.Level.String(), e.Message)
}

const maxEntries = 50

// recorder keeps the most recent warnings and errors.
type recorder struct {
	mu      sync.Mutex
	entries []Entry
	warns   int
	errs    int
}

func (r *recorder) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == maxEntries {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:maxEntries-1]
	}
	r.entries = append(r.entries, e)

	if e.Level >= slog.LevelError {
		r.errs++
	} else {
		r.warns++
	}
}

// capturingHandler forwards to inner and records WARN and above.
type capturingHandler struct {
	inner slog.Handler
	rec   *recorder
}

func (h *capturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *capturingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		h.rec.add(Entry{Time: r.Time, Level: r.Level, Message: r.Message})
	}
	return h.inner.Handle(ctx, r)
}

func (h *capturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &capturingHandler{inner: h.inner.WithAttrs(attrs), rec: h.rec}
}

func (h *capturingHandler) WithGroup(name string) slog.Handler {
	return &capturingHandler{inner: h.inner.WithGroup(name), rec: h.rec}
}

var (
	// Log is the global structured logger
	Log *slog.Logger
	// LogPath is the file the logger writes to
	LogPath string

	writer *lumberjack.Logger
	rec    = &recorder{}
)

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// DefaultPath returns ~/.config/faultscope/faultscope.log.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "faultscope", "faultscope.log")
}

// InitLogger installs the global logger. An empty logPath uses DefaultPath.
func InitLogger(level slog.Level, logPath string) {
	if logPath == "" {
		logPath = DefaultPath()
	}
	_ = os.MkdirAll(filepath.Dir(logPath), 0o755)
	LogPath = logPath

	writer = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}

	rec = &recorder{}
	handler := &capturingHandler{
		inner: slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level}),
		rec:   rec,
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
}

// Close flushes and closes the log file.
func Close() {
	if writer != nil {
		_ = writer.Close()
	}
}

func get() *slog.Logger {
	if Log != nil {
		return Log
	}
	return slog.Default()
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { get().Error(msg, args...) }

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Counts returns the number of warnings and errors logged since InitLogger.
func Counts() (warns, errs int) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.warns, rec.errs
}

// Entries returns the most recent warnings and errors, oldest first.
func Entries() []Entry {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]Entry, len(rec.entries))
	copy(out, rec.entries)
	return out
}
