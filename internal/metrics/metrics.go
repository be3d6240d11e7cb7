package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fanout outcome labels.
const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	FanoutSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_submissions_total",
			Help: "Supplier submissions attempted by fanout, by outcome",
		},
		[]string{"outcome"},
	)

	FanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fanout_duration_seconds",
			Help:    "Duration of one fanout batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Applied order status transitions, by action and target status",
		},
		[]string{"action", "to"},
	)

	NotificationSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_source_failures_total",
			Help: "Notification source calls that failed, by source",
		},
		[]string{"source"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
