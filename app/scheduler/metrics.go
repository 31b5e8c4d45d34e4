package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_queue_passes_total",
			Help: "Poll passes by result",
		},
		[]string{"result"},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "integration_queue_pass_duration_seconds",
			Help:    "Duration of poll passes that fetched work",
			Buckets: prometheus.DefBuckets,
		},
	)

	jobOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_queue_job_outcomes_total",
			Help: "Per-job outcomes of the retry queue",
		},
		[]string{"outcome"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "integration_queue_depth",
			Help: "Jobs in the retry queue at the last stats query",
		},
	)
)
