package main

import (
	"io"
	"log/slog"

	"github.com/vango-dev/queryguard/internal/config"
)

// newLogger builds the process logger from cfg.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
