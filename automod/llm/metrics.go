package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var llmDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mentionmod_llm_duration_sec",
	Help:    "Duration of language model completion calls, by backend",
	Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
}, []string{"backend"})

var llmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_llm_requests",
	Help: "Number of language model completion calls, by backend and status",
}, []string{"backend", "status"})
