package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK       = "ok"
	OutcomeSentinel = "sentinel"
)

var (
	AnalysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurochat_analysis_total",
			Help: "Total number of analysis calls by outcome",
		},
		[]string{"outcome"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neurochat_analysis_duration_seconds",
			Help:    "Wall-clock duration of analysis calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
		[]string{"outcome"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurochat_llm_requests_total",
			Help: "Requests sent to the remote model by result",
		},
		[]string{"result"},
	)

	TurnsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurochat_turns_rejected_total",
			Help: "Submissions rejected before a turn started",
		},
		[]string{"reason"},
	)

	TurnPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neurochat_turn_pending",
			Help: "1 while a turn is waiting for the remote model",
		},
	)
)
