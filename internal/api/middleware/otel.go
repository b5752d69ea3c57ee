// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracing opens a server span per request using the global provider and
// propagator, continuing any incoming W3C trace. Probe and scrape requests
// are not traced.
func Tracing(service string) func(http.Handler) http.Handler {
	opts := []otelhttp.Option{
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
		otelhttp.WithSpanOptions(trace.WithAttributes(semconv.ServiceName(service))),
		otelhttp.WithFilter(func(r *http.Request) bool { return !isProbePath(r.URL.Path) }),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service, opts...)
	}
}

// withTrace adds the active span's IDs to a log event so access lines can be
// joined with traces.
func withTrace(evt *zerolog.Event, r *http.Request) *zerolog.Event {
	sc := trace.SpanContextFromContext(r.Context())
	if !sc.IsValid() {
		return evt
	}
	return evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
}
