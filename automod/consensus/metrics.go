package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var consensusOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_consensus_outcomes",
	Help: "Number of consensus decisions, by outcome",
}, []string{"outcome"})
