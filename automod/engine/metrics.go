package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mentionProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "mentionmod_mention_duration_sec",
	Help:    "Total duration of mention pipeline processing",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
})

var mentionProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_mention_processed",
	Help: "Number of mentions processed, by final status",
}, []string{"status"})

var mentionErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_mention_errors",
	Help: "Number of mentions which failed processing, by stage",
}, []string{"stage"})

var profileFetches = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mentionmod_profile_fetches",
	Help: "Number of author profile reads (API calls)",
})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_actions",
	Help: "Number of moderation calls made, by action and status",
}, []string{"action", "status"})

var circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_circuit_breaker_trips",
	Help: "Number of moderation actions suppressed by a daily quota",
}, []string{"action"})

var suspendCapableGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "mentionmod_suspend_capable",
	Help: "Whether the bot currently attempts to suspend spam authors (1) or not (0)",
})
