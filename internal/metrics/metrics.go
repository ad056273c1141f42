// Package metrics provides Prometheus instrumentation for the token safety service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokensafe",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tokensafe",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnalysesTotal counts completed analyses by chain and resulting risk level.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokensafe",
			Name:      "analyses_total",
			Help:      "Completed token analyses by chain id and risk level.",
		},
		[]string{"chain_id", "risk_level"},
	)

	// RejectedAnalysesTotal counts requests refused before any source ran.
	RejectedAnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokensafe",
			Name:      "analyses_rejected_total",
			Help:      "Analyses rejected by precondition checks, by reason.",
		},
		[]string{"reason"},
	)

	// SafetyScores observes the distribution of safety scores.
	SafetyScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tokensafe",
		Name:      "safety_score",
		Help:      "Distribution of aggregated safety scores.",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	// HoneypotsDetectedTotal counts verdicts flagged as honeypots.
	HoneypotsDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tokensafe",
		Name:      "honeypots_detected_total",
		Help:      "Verdicts where the reputation source confirmed a honeypot.",
	})

	// SourceResultsTotal counts source records by source and status (ok|error).
	SourceResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokensafe",
			Name:      "source_results_total",
			Help:      "Risk records produced by each source, by status.",
		},
		[]string{"source", "status"},
	)

	// SourceDuration observes how long each source took, retries included.
	SourceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tokensafe",
			Name:      "source_duration_seconds",
			Help:      "Time spent fetching a risk record, by source.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"source"},
	)

	// UpstreamRetriesTotal counts retried upstream calls by source.
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokensafe",
			Name:      "upstream_retries_total",
			Help:      "Upstream calls retried after a recoverable failure.",
		},
		[]string{"source"},
	)

	// ProbeFailuresTotal counts failed token-interface probes by method.
	ProbeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokensafe",
			Name:      "probe_failures_total",
			Help:      "Failed contract probes by method (name, symbol, decimals, totalSupply, balanceOf).",
		},
		[]string{"probe"},
	)

	// PaymentsTotal counts payment-gate outcomes.
	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokensafe",
			Name:      "payments_total",
			Help:      "Payment proofs seen by the paywall, by result.",
		},
		[]string{"result"},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tokensafe",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tokensafe",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected verdict-feed clients.",
		},
	)

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tokensafe", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysesTotal,
		RejectedAnalysesTotal,
		SafetyScores,
		HoneypotsDetectedTotal,
		SourceResultsTotal,
		SourceDuration,
		UpstreamRetriesTotal,
		ProbeFailuresTotal,
		PaymentsTotal,
		RateLimitedTotal,
		ActiveWebSocketClients,
		GoroutineCount,
	)
}

// StartRuntimeCollector periodically samples the goroutine count.
// Call in a goroutine; exits when ctx is done.
func StartRuntimeCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
