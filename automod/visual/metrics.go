package visual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var extractDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mentionmod_visual_extract_duration_sec",
	Help:    "Duration of image text extraction and captioning calls, by extractor",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
}, []string{"extractor"})

var extractCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_visual_extract_count",
	Help: "Number of image extraction calls, by extractor and status",
}, []string{"extractor", "status"})

var imageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "mentionmod_image_fetch_duration_sec",
	Help: "Duration of attachment image downloads",
})

var imageFetchBytes = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "mentionmod_image_fetch_bytes",
	Help:    "Size of downloaded attachment images",
	Buckets: prometheus.ExponentialBuckets(4096, 4, 8),
})

var imageFetchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_image_fetch_count",
	Help: "Number of attachment image downloads, by HTTP status code (or error, blocked)",
}, []string{"status"})
