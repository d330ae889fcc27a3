package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evidence_ledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evidence_ledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evidence_ledger_submissions_total",
		Help: "Evidence submissions by outcome (saved, invalid, too_large, error).",
	}, []string{"result"})

	ledgerChainIntact = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evidence_ledger_chain_intact",
		Help: "1 when the last integrity audit passed, 0 when it failed.",
	})

	ledgerWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evidence_ledger_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		ledgerRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		ledgerRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func recordSubmission(result string) {
	ledgerSubmissionsTotal.WithLabelValues(result).Inc()
}

// RecordAudit records the outcome of a chain integrity audit.
func RecordAudit(intact bool) {
	if intact {
		ledgerChainIntact.Set(1)
	} else {
		ledgerChainIntact.Set(0)
	}
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		ledgerWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		ledgerWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
