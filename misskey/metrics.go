package misskey

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "misskey_api_duration_sec",
	Help: "Duration of Misskey API calls, by endpoint",
}, []string{"endpoint"})

var apiCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "misskey_api_count",
	Help: "Number of Misskey API calls, by endpoint and HTTP status code",
}, []string{"endpoint", "status"})

var streamEventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "misskey_stream_events",
	Help: "Number of streaming API messages received, by channel event type",
}, []string{"type"})

var streamBytesCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "misskey_stream_bytes",
	Help: "Bytes received from the streaming API",
})
