package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_deliveries_total",
			Help: "Partner deliveries by path, result and error kind",
		},
		[]string{"path", "result", "kind"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "integration_delivery_duration_seconds",
			Help:    "Duration of partner API calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"path"},
	)

	configCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_config_cache_lookups_total",
			Help: "Active configuration lookups by cache result",
		},
		[]string{"result"},
	)
)

const (
	pathSend  = "send"
	pathRetry = "retry"
)
