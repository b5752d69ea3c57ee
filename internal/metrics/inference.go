// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// InferenceFrameDuration tracks one forward pass per frame.
	InferenceFrameDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamvault_inference_frame_duration_seconds",
		Help:    "Duration of a single-frame inference pass, by provider.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
	}, []string{"provider"})

	// InferenceFramesTotal counts processed frames by result.
	InferenceFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_inference_frames_total",
		Help: "Total frames sent through inference, by result.",
	}, []string{"result"})

	// FramesInFlight is the number of frames currently admitted past the gate.
	FramesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamvault_inference_frames_in_flight",
		Help: "Current number of frames being inferred.",
	})

	// SessionCacheLookups counts session cache lookups by result (hit|miss).
	SessionCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_session_cache_lookups_total",
		Help: "Inference session cache lookups, by result.",
	}, []string{"result"})

	// SessionCacheEvictions counts sessions evicted by the LRU policy.
	SessionCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamvault_session_cache_evictions_total",
		Help: "Total inference sessions evicted from the cache.",
	})

	// SessionsResident is the number of loaded sessions.
	SessionsResident = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamvault_sessions_resident",
		Help: "Current number of resident inference sessions.",
	})
)

// ObserveInference records one frame pass.
func ObserveInference(provider string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	InferenceFramesTotal.WithLabelValues(result).Inc()
	InferenceFrameDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordSessionLookup counts a cache hit or miss.
func RecordSessionLookup(hit bool) {
	if hit {
		SessionCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	SessionCacheLookups.WithLabelValues("miss").Inc()
}

// GetSessionsResident returns the current gauge value (for testing).
func GetSessionsResident() float64 {
	var m dto.Metric
	if err := SessionsResident.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
