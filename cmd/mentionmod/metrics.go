package main

import (
	"go.opentelemetry.io/otel"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var tracer = otel.Tracer("mentionmod")

var streamDisconnects = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mentionmod_stream_disconnects",
	Help: "Number of times the streaming API connection was lost",
})

var streamMentionsReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mentionmod_stream_mentions_received",
	Help: "Number of mention events received from the streaming API",
})

var backlogScans = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_backlog_scans",
	Help: "Number of backlog scans, by status",
}, []string{"status"})
