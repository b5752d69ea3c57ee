// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FFmpegInvocationsTotal counts external transcoder runs by stage and result.
	FFmpegInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_ffmpeg_invocations_total",
		Help: "Total ffmpeg/ffprobe invocations, by stage and result.",
	}, []string{"stage", "result"})

	// FFmpegDuration tracks ffmpeg run time by stage.
	FFmpegDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamvault_ffmpeg_duration_seconds",
		Help:    "Duration of ffmpeg invocations, by stage.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 16), // 100ms to ~1.8h
	}, []string{"stage"})

	// FFmpegStallsTotal counts runs killed by the progress watchdog.
	FFmpegStallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_ffmpeg_stalls_total",
		Help: "Total ffmpeg runs killed because progress stalled, by stage.",
	}, []string{"stage"})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_proc_terminate_total",
		Help: "Signals sent to child process groups, by signal and outcome.",
	}, []string{"signal", "outcome"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_proc_wait_total",
		Help: "Child process exits observed during termination, by outcome.",
	}, []string{"outcome"})
)

// RecordFFmpeg records one external transcoder invocation.
func RecordFFmpeg(stage, result string, d time.Duration) {
	FFmpegInvocationsTotal.WithLabelValues(stage, result).Inc()
	FFmpegDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncFFmpegStall counts a watchdog kill.
func IncFFmpegStall(stage string) {
	FFmpegStallsTotal.WithLabelValues(stage).Inc()
}

// IncProcTerminate counts a termination signal.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait counts a process exit observed while terminating.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}
