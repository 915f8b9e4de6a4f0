package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payledger_operations_total",
		Help: "Ledger operations by name and result (ok or error code).",
	}, []string{"op", "result"})

	withdrawnEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payledger_withdrawn_entries_total",
		Help: "Withdrawn entries by kind (payroll, stake) and whether funds moved.",
	}, []string{"kind", "moved"})

	healthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payledger_health_checks_total",
		Help: "Total health probe runs by probe and result.",
	}, []string{"probe", "result"})

	journalEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payledger_journal_entries_total",
		Help: "Total journal entries appended.",
	})

	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payledger_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payledger_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by class (read, write).",
	}, []string{"class"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		requestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func recordOperation(op, result string) {
	operationsTotal.WithLabelValues(op, result).Inc()
}

func recordWithdrawn(kind string, zero bool) {
	moved := "true"
	if zero {
		moved = "false"
	}
	withdrawnEntriesTotal.WithLabelValues(kind, moved).Inc()
}

func recordRateLimited(class string) {
	rateLimitedTotal.WithLabelValues(class).Inc()
}

// RecordHealthCheck records a health probe result.
func RecordHealthCheck(probe string, success bool) {
	if success {
		healthChecksTotal.WithLabelValues(probe, "success").Inc()
	} else {
		healthChecksTotal.WithLabelValues(probe, "failure").Inc()
	}
}

// RecordJournalAppend records a journal entry append.
func RecordJournalAppend() {
	journalEntriesTotal.Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		webhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		webhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
