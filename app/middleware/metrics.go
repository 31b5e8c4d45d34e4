package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by method, route template and status",
		},
		[]string{"method", "route", "status"},
	)

	apiLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "integration",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API latency by method and route template",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	apiInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "integration",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "API requests currently being served",
		},
	)
)

// Metrics records request counts and latency per route template. Requests to
// any of skip (usually the scrape endpoint) are not recorded.
func Metrics(skip ...string) fiber.Handler {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c fiber.Ctx) error {
		if _, ok := skipped[c.Path()]; ok {
			return c.Next()
		}

		start := time.Now()
		apiInFlight.Inc()
		defer apiInFlight.Dec()

		err := c.Next()

		// unmatched paths share one label
		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}
		method := c.Method()
		apiRequests.WithLabelValues(method, route, strconv.Itoa(c.Response().StatusCode())).Inc()
		apiLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

		return err
	}
}
