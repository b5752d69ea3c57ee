// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the streamvault pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No ids (video, stream, job) in labels.

var (
	// JobsTotal counts finished jobs by kind (encode|upscale) and result (ok|failed).
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_jobs_total",
		Help: "Total number of finished pipeline jobs, by kind and result.",
	}, []string{"kind", "result"})

	// JobDuration tracks wall time of whole jobs.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamvault_job_duration_seconds",
		Help:    "Wall time of pipeline jobs, by kind.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2h
	}, []string{"kind"})

	// JobsActive tracks jobs currently executing.
	JobsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamvault_jobs_active",
		Help: "Current number of executing pipeline jobs, by kind.",
	}, []string{"kind"})

	// QueueEnqueuedTotal counts jobs pushed onto the queue.
	QueueEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_queue_enqueued_total",
		Help: "Total number of jobs enqueued, by kind.",
	}, []string{"kind"})
)

// RecordJob records the outcome of a finished job.
func RecordJob(kind, result string, d time.Duration) {
	JobsTotal.WithLabelValues(kind, result).Inc()
	JobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// JobStarted increments the active gauge and returns the matching decrement.
func JobStarted(kind string) func() {
	JobsActive.WithLabelValues(kind).Inc()
	return func() { JobsActive.WithLabelValues(kind).Dec() }
}

// RecordEnqueue counts an enqueued job.
func RecordEnqueue(kind string) {
	QueueEnqueuedTotal.WithLabelValues(kind).Inc()
}
