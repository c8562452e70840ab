package judge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var judgeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mentionmod_judge_duration_sec",
	Help:    "Duration of a single judge evaluation attempt (both protocol steps)",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
}, []string{"judge"})

var judgeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_judge_attempts",
	Help: "Number of judge evaluation attempts, by judge and status (ok, malformed, error)",
}, []string{"judge", "status"})

var judgeResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mentionmod_judge_results",
	Help: "Number of well-formed judge verdicts, by judge and result category",
}, []string{"judge", "result"})
