package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "integration_rate_limit_decisions_total",
		Help: "Admission decisions taken before partner deliveries",
	},
	[]string{"limiter", "outcome"},
)
