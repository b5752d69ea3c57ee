// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

// correlationKey identifies a correlation id stored in a context. The value
// doubles as the log field name.
type correlationKey string

const (
	requestIDKey correlationKey = FieldRequestID
	jobIDKey     correlationKey = FieldJobID
)

// correlationKeys lists the ids WithContext copies onto loggers, in order.
var correlationKeys = []correlationKey{requestIDKey, jobIDKey}

func withID(ctx context.Context, key correlationKey, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key correlationKey) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key).(string)
	return id
}

// ContextWithRequestID stores the HTTP request id in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestIDKey, id)
}

// ContextWithJobID stores the queue job id in ctx.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	return withID(ctx, jobIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string { return idFrom(ctx, requestIDKey) }

func JobIDFromContext(ctx context.Context) string { return idFrom(ctx, jobIDKey) }

// WithContext adds the correlation ids found in ctx to logger. Without any,
// logger is returned unchanged.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	var lc *zerolog.Context
	for _, key := range correlationKeys {
		id := idFrom(ctx, key)
		if id == "" {
			continue
		}
		if lc == nil {
			c := logger.With()
			lc = &c
		}
		*lc = lc.Str(string(key), id)
	}
	if lc == nil {
		return logger
	}
	return lc.Logger()
}

// WithComponentFromContext is WithContext applied to WithComponent(component).
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
