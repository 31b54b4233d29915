package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	StockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_operations_total",
			Help: "Stock mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	StockOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stock_operation_duration_seconds",
			Help:    "Time spent inside a stock mutation, store round trips included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_store_retries_total",
			Help: "Store writes retried after a version conflict or transient failure",
		},
		[]string{"operation"},
	)
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_notifications_total",
			Help: "Outbound stock notifications by kind and delivery status",
		},
		[]string{"kind", "status"},
	)
	NotificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stock_notification_queue_depth",
			Help: "Notifications waiting in the async dispatcher",
		},
	)
)

// Outcome maps an operation error to a low-cardinality label.
func Outcome(err error, classify func(error) string) string {
	if err == nil {
		return "success"
	}
	if classify != nil {
		if label := classify(err); label != "" {
			return label
		}
	}
	return "error"
}

func ObserveOperation(operation string, start time.Time, outcome string) {
	StockOperations.WithLabelValues(operation, outcome).Inc()
	StockOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func NormalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if idx := strings.Index(p, "/"); idx >= 0 {
		p = p[:idx]
	}
	if p == "" {
		return "root"
	}
	return p
}

func Middleware(c *gin.Context) {
	if c.Request.URL.Path == "/metrics" {
		c.Next()
		return
	}
	start := time.Now()
	c.Next()
	duration := time.Since(start).Seconds()
	path := NormalizePath(c.Request.URL.Path)
	status := strconv.Itoa(c.Writer.Status())
	RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	RequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
}
