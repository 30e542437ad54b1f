package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const (
	EscrowHold    = "hold"
	EscrowRelease = "release"
	EscrowRefund  = "refund"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)

	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_orders_created_total",
		Help: "Orders placed",
	})

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_order_transitions_total",
			Help: "Order status changes by target status",
		},
		[]string{"status"},
	)

	payments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_payments_total",
			Help: "Payment attempts by outcome",
		},
		[]string{"status"},
	)

	escrowMovements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_escrow_movements_total",
			Help: "Escrow ledger movements by kind",
		},
		[]string{"kind"},
	)

	escrowAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_escrow_amount_total",
			Help: "Money moved through escrow by kind",
		},
		[]string{"kind"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_notification_failures_total",
			Help: "Notifications that could not be published",
		},
		[]string{"event"},
	)

	idempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_idempotent_replays_total",
		Help: "Requests answered from a stored idempotency key",
	})
)

func OrderCreated() { ordersCreated.Inc() }
func OrderTransition(status string) { orderTransitions.WithLabelValues(status).Inc() }
func Payment(status string) { payments.WithLabelValues(status).Inc() }
func NotificationFailed(event string) { notificationFailures.WithLabelValues(event).Inc() }
func IdempotentReplay() { idempotentReplays.Inc() }

func RecordEscrow(kind string, amount decimal.Decimal) {
	escrowMovements.WithLabelValues(kind).Inc()
	escrowAmount.WithLabelValues(kind).Add(amount.InexactFloat64())
}

func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := float64(time.Since(start).Milliseconds())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
