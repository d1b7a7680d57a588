package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logTimeFormat  = "2006-01-02T15:04:05.000Z07:00"
	logMaxSizeMB   = 10
	logMaxBackups  = 5
	logMaxAgeDays  = 14
	defaultLogName = "localsync.log"
)

// MultiLogHandler forwards records to every wrapped handler that accepts the level
type MultiLogHandler struct {
	handlers []slog.Handler
}

func NewMultiLogHandler(handlers ...slog.Handler) *MultiLogHandler {
	return &MultiLogHandler{handlers: handlers}
}

func (h *MultiLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return NewMultiLogHandler(handlers...)
}

func (h *MultiLogHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return NewMultiLogHandler(handlers...)
}

// ParseLogLevel maps debug/info/warn/error onto slog levels.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// LogOptions configures NewLogger
type LogOptions struct {
	Level slog.Level
	// Console receives the coloured human log. Defaults to os.Stdout.
	Console *os.File
	// LogDir enables the rotating file log when non-empty.
	LogDir string
}

type logCloser struct {
	interceptor *LogInterceptor
	rotator     *lumberjack.Logger
}

func (c *logCloser) Close() error {
	if c.interceptor == nil {
		return nil
	}
	return errors.Join(c.interceptor.Close(), c.rotator.Close())
}

// NewLogger builds the console + rotating file logger. The returned closer flushes
// and closes the file sink.
func NewLogger(opts LogOptions) (*slog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      opts.Level,
			TimeFormat: logTimeFormat,
			NoColor:    !isatty.IsTerminal(console.Fd()),
		}),
	}

	closer := &logCloser{}
	if opts.LogDir != "" {
		if err := EnsureDir(opts.LogDir); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		closer.rotator = &lumberjack.Logger{
			Filename:   opts.LogDir + string(os.PathSeparator) + defaultLogName,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		closer.interceptor = NewLogInterceptor(closer.rotator)
		handlers = append(handlers, slog.NewTextHandler(closer.interceptor, &slog.HandlerOptions{
			Level: opts.Level,
			// the interceptor stamps its own time
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					return slog.Attr{}
				}
				return a
			},
		}))
	}

	return slog.New(NewMultiLogHandler(handlers...)), closer, nil
}
