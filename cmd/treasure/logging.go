package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/trashtotreasure/treasure/internal/config"
)

// splitHandler sends records below ERROR to out and the rest to errOut.
type splitHandler struct {
	out    slog.Handler
	errOut slog.Handler
}

func (h *splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.out.Enabled(ctx, level)
}

func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return h.errOut.Handle(ctx, r)
	}
	return h.out.Handle(ctx, r)
}

func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{out: h.out.WithAttrs(attrs), errOut: h.errOut.WithAttrs(attrs)}
}

func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{out: h.out.WithGroup(name), errOut: h.errOut.WithGroup(name)}
}

// newLogger builds a logger writing to stdout and stderr, and to file when
// it is non-nil.
func newLogger(cfg config.LogConfig, stdout, stderr, file io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if file != nil {
		stdout = io.MultiWriter(stdout, file)
		stderr = io.MultiWriter(stderr, file)
	}
	build := func(w io.Writer) slog.Handler {
		if cfg.Format == "json" {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}
	return slog.New(&splitHandler{out: build(stdout), errOut: build(stderr)})
}

// setupLogger installs the default logger. The returned func closes the log
// file, if one was opened.
func setupLogger(cfg config.LogConfig) (func(), error) {
	cleanup := func() {}
	var file io.Writer
	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		file = f
	}
	slog.SetDefault(newLogger(cfg, os.Stdout, os.Stderr, file))
	return cleanup, nil
}
