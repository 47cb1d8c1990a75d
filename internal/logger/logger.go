package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	level = new(slog.LevelVar)

	mu       sync.RWMutex
	format             = "text"
	output   io.Writer = os.Stdout
	closer   io.Closer
	useColor bool
	slogger  *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	useColor = isTerminal(os.Stdout)
	rebuild()
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// rebuild swaps the handler. Callers must not hold mu.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init applies the given configuration. Output can be "stdout", "stderr"
// or a file path; a previously opened log file is closed.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, c, color, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}

		mu.Lock()
		prev := closer
		output, closer, useColor = w, c, color
		mu.Unlock()

		if prev != nil {
			_ = prev.Close()
		}
	}

	if cfg.Level != "" {
		if err := SetLevel(cfg.Level); err != nil {
			return err
		}
	}
	if cfg.Format != "" {
		if err := SetFormat(cfg.Format); err != nil {
			return err
		}
	}

	rebuild()
	return nil
}

func openOutput(target string) (io.Writer, io.Closer, bool, error) {
	switch strings.ToLower(target) {
	case "stdout":
		return os.Stdout, nil, isTerminal(os.Stdout), nil
	case "stderr":
		return os.Stderr, nil, isTerminal(os.Stderr), nil
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to open log file %q: %w", target, err)
	}
	return f, f, false, nil
}

// InitWithWriter points the logger at w. Used by tests and by the CLI when
// output is captured.
func InitWithWriter(w io.Writer, lvl, fmtName string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if lvl != "" {
		_ = SetLevel(lvl)
	}
	if fmtName != "" {
		_ = SetFormat(fmtName)
	}
	rebuild()
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// SetLevel changes the minimum level. It takes effect immediately for every
// logger derived with With.
func SetLevel(s string) error {
	l, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// GetLevel returns the current minimum level.
func GetLevel() slog.Level {
	return level.Level()
}

// SetFormat selects text or json output.
func SetFormat(s string) error {
	s = strings.ToLower(s)
	if s != "text" && s != "json" {
		return fmt.Errorf("unknown log format %q", s)
	}

	mu.Lock()
	changed := format != s
	format = s
	mu.Unlock()

	if changed {
		rebuild()
	}
	return nil
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at debug level. Usage: Debug("msg", "key", value, ...)
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { get().Error(msg, args...) }

// DebugCtx logs at debug level, prefixing fields carried by the LogContext in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelDebug, msg, args)
}

// InfoCtx logs at info level with context fields.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelInfo, msg, args)
}

// WarnCtx logs at warn level with context fields.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelWarn, msg, args)
}

// ErrorCtx logs at error level with context fields.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelError, msg, args)
}

func logCtx(ctx context.Context, lvl slog.Level, msg string, args []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	l := get()
	if !l.Enabled(ctx, lvl) {
		return
	}
	l.Log(ctx, lvl, msg, FromContext(ctx).prepend(args)...)
}

// With returns a logger with pre-bound attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Since returns milliseconds elapsed since start.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
