// Package metrics exposes prometheus instrumentation for the enforcement
// API.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	enforcementdomain "github.com/testbedhq/balance/internal/enforcement/domain"
)

type Metrics struct {
	enforcementTotal *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		enforcementTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balance_enforcement_decisions_total",
			Help: "Enforcement decisions by operation and outcome.",
		}, []string{"op", "outcome"}),
	}
	prometheus.MustRegister(m.enforcementTotal)
	return m
}

// RecordEnforcement counts one enforcement decision. Denials are broken out
// by error kind so dashboards can tell policy rejections from failures.
func (m *Metrics) RecordEnforcement(op string, err error) {
	m.enforcementTotal.WithLabelValues(op, outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if err == nil {
		return "allowed"
	}
	var billing *enforcementdomain.BillingError
	if errors.As(err, &billing) {
		return string(billing.Code)
	}
	var pastExpiration *enforcementdomain.LeasePastExpirationError
	if errors.As(err, &pastExpiration) {
		return "past_expiration"
	}
	var maxDuration *enforcementdomain.MaxLeaseDurationError
	if errors.As(err, &maxDuration) {
		return "max_duration"
	}
	var updateWindow *enforcementdomain.MaxLeaseUpdateWindowError
	if errors.As(err, &updateWindow) {
		return "update_window"
	}
	return "error"
}

// HTTPMetrics instruments request handling.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balance_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "balance_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	prometheus.MustRegister(m.requests, m.duration)
	return m
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
