package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	paymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voyago_payment_transitions_total",
			Help: "Payment status transitions applied",
		},
		[]string{"status"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voyago_webhook_events_total",
			Help: "Provider webhook deliveries by event and outcome",
		},
		[]string{"event", "result"},
	)

	bookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voyago_bookings_created_total",
			Help: "Bookings created",
		},
	)

	fraudDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voyago_fraud_decisions_total",
			Help: "Fraud scorer decisions by recommended action",
		},
		[]string{"action"},
	)

	providerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voyago_provider_errors_total",
			Help: "Failed Pi platform API calls by operation",
		},
		[]string{"op"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voyago_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func TrackPaymentTransition(status string) {
	paymentTransitions.WithLabelValues(status).Inc()
}

// TrackWebhookEvent records a delivery outcome: processed, duplicate, or rejected.
func TrackWebhookEvent(event, result string) {
	webhookEvents.WithLabelValues(event, result).Inc()
}

func TrackBookingCreated() {
	bookingsCreated.Inc()
}

func TrackFraudDecision(action string) {
	fraudDecisions.WithLabelValues(action).Inc()
}

func TrackProviderError(op string) {
	providerErrors.WithLabelValues(op).Inc()
}

// GinMiddleware measures request latency per route. Uses the route template
// rather than the raw path to keep label cardinality bounded.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpDuration.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
