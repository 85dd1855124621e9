// Package metrics provides Prometheus instrumentation for the ledger service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsCreated counts collaborative requests opened.
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolvest_requests_created_total",
		Help: "Total collaborative requests created",
	})

	// RequestsFunded counts open→funded transitions.
	RequestsFunded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolvest_requests_funded_total",
		Help: "Total requests reaching full funding",
	})

	// RequestsSettled counts funded→settled transitions.
	RequestsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolvest_requests_settled_total",
		Help: "Total requests settled into holdings",
	})

	// RequestsCancelled counts cancellations.
	RequestsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolvest_requests_cancelled_total",
		Help: "Total requests cancelled and refunded",
	})

	// ContributionsTotal counts recorded contributions.
	ContributionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolvest_contributions_total",
		Help: "Total contributions recorded",
	})

	// LimitRejections counts contributions rejected by the limiter.
	LimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolvest_limit_rejections_total",
		Help: "Contributions rejected by the contribution limiter",
	})

	// TradesTotal counts direct transactions, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolvest_trades_total",
		Help: "Total direct transactions executed",
	}, []string{"side"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poolvest_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolvest_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poolvest_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is low.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
