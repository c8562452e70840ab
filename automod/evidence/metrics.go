package evidence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var extractFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_evidence_extract_failures",
	Help: "Number of (extractor, attachment) pairs dropped from evidence because extraction failed",
}, []string{"extractor"})
