// Package metrics holds the Prometheus collectors incremented by the
// transcription engine. Embedding applications expose them through their own
// /metrics endpoint; the library only records.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "polyscribe"

var (
	TranscriptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcriptions_total",
		Help:      "Transcription calls by provider and outcome.",
	}, []string{"provider", "status"})

	TranscriptionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcription_duration_seconds",
		Help:      "Wall-clock duration of one transcription call.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s → ~17min
	}, []string{"provider"})

	ProviderPollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_polls_total",
		Help:      "Completion polls issued against asynchronous provider jobs.",
	}, []string{"provider"})

	AudioToolRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_tool_runs_total",
		Help:      "External audio tool invocations by tool and outcome.",
	}, []string{"tool", "status"})
)

func init() {
	prometheus.MustRegister(
		TranscriptionsTotal,
		TranscriptionDuration,
		ProviderPollsTotal,
		AudioToolRunsTotal,
	)
}

// Outcome labels for TranscriptionsTotal and AudioToolRunsTotal.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
