// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log owns the process-wide zerolog logger and the field names used
// across streamvault.
package log

import (
	"cmp"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the process logger. Zero fields fall back to the
// LOG_LEVEL and LOG_SERVICE environment variables, then to defaults.
type Config struct {
	Level   string
	Output  io.Writer
	Service string
	Version string
}

var current atomic.Pointer[zerolog.Logger]

// Configure replaces the process logger. main calls it once with defaults
// and again after the configuration file is loaded.
func Configure(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLevel(cmp.Or(cfg.Level, os.Getenv("LOG_LEVEL"))))

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	l := zerolog.New(out).With().
		Timestamp().
		Str("service", cmp.Or(cfg.Service, os.Getenv("LOG_SERVICE"), "streamvault")).
		Str("version", cfg.Version).
		Logger()
	current.Store(&l)
}

// parseLevel falls back to info for empty or unknown names.
func parseLevel(name string) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(name); err == nil && name != "" {
		return lvl
	}
	return zerolog.InfoLevel
}

// SetLevel changes the global level in place; used on config reload.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Base returns the process logger, configuring defaults on first use.
func Base() zerolog.Logger {
	if l := current.Load(); l != nil {
		return *l
	}
	Configure(Config{})
	return *current.Load()
}

// L returns a pointer to a copy of the process logger.
func L() *zerolog.Logger {
	l := Base()
	return &l
}

// WithComponent tags a child logger with its subsystem.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}

// Derive builds a child logger with arbitrary fields.
func Derive(build func(*zerolog.Context)) zerolog.Logger {
	c := Base().With()
	if build != nil {
		build(&c)
	}
	return c.Logger()
}
