// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chordial_messages_total",
	Help: "Messages appended to the raw log",
}, []string{"platform", "role"})

var ScheduledDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chordial_scheduled_decisions_total",
	Help: "Proactive message decisions by outcome",
}, []string{"outcome"})

var Compressions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chordial_compressions_total",
	Help: "Compression attempts by result",
}, []string{"result"})

var SummariesCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chordial_summaries_created_total",
	Help: "Conversation summaries written",
})

var GenerationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chordial_generation_failures_total",
	Help: "Reply generations that fell back to the apology text",
}, []string{"kind"})

var GenerationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "chordial_generation_seconds",
	Help:    "Time spent waiting on the generation provider",
	Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
}, []string{"kind"})

var ActiveMemories = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "chordial_active_memories",
	Help: "Active memories across all users",
})

// Compression results
const (
	CompressionCompressed = "compressed"
	CompressionSkipped    = "skipped"
	CompressionFallback   = "fallback"
)

// Scheduled decision outcomes
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)
