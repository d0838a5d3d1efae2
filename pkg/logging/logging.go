// Package logging wires log/slog to a rotating debug log file. Logging is
// off by default: until Init runs with an enabled config, every record is
// discarded, so the library packages can log unconditionally.
package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names for structured logging.
const (
	CompStore    = "store"
	CompLauncher = "launcher"
	CompImport   = "import"
	CompCLI      = "cli"
)

// Config holds logging configuration.
type Config struct {
	// Dir is the directory for the log file (e.g. ~/.ssh-manager).
	Dir string

	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// MaxSizeMB is the max size in MB before rotation (default 10).
	MaxSizeMB int

	// MaxBackups is rotated files to keep (default 3).
	MaxBackups int

	// MaxAgeDays is days to keep rotated files (default 14).
	MaxAgeDays int

	// Enabled turns file logging on. When false everything is discarded.
	Enabled bool
}

var (
	globalMu     sync.RWMutex
	globalLogger *slog.Logger
	fileWriter   *lumberjack.Logger
)

// Init installs the global logger. Call once at startup; safe to skip
// entirely for callers that never want a log file.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if !cfg.Enabled || cfg.Dir == "" {
		globalLogger = discardLogger()
		return
	}

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 14
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	fileWriter = &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "sshm.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	globalLogger = slog.New(slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: level}))
}

// Logger returns the global logger. Safe to call before Init.
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return discardLogger()
	}
	return globalLogger
}

// ForComponent returns a logger tagged with the component name. It resolves
// the global handler at log time, so loggers created before Init still pick
// up the real handler once Init runs.
func ForComponent(name string) *slog.Logger {
	return slog.New(&lateBoundHandler{component: name})
}

// Shutdown closes the log file if one is open.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	globalLogger = nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lateBoundHandler delegates to the current global handler at log time
// instead of capturing whichever handler existed at construction.
type lateBoundHandler struct {
	component string
	attrs     []slog.Attr
	group     string
}

func (h *lateBoundHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *lateBoundHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler()
	handler = handler.WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	if h.group != "" {
		handler = handler.WithGroup(h.group)
	}
	return handler.Handle(ctx, r)
}

func (h *lateBoundHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	copy(merged[len(h.attrs):], attrs)
	return &lateBoundHandler{component: h.component, attrs: merged, group: h.group}
}

func (h *lateBoundHandler) WithGroup(name string) slog.Handler {
	return &lateBoundHandler{component: h.component, attrs: h.attrs, group: name}
}
