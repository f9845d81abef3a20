// Package metrics provides Prometheus instrumentation for the vault engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProjectionsTotal counts projections computed, partitioned by deposit currency.
	ProjectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_projections_total",
		Help: "Total number of projections computed",
	}, []string{"currency"})

	// ProjectionMonths tracks the requested projection durations.
	ProjectionMonths = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vault_projection_months",
		Help:    "Projection duration in months",
		Buckets: []float64{1, 3, 6, 12, 24, 60, 120, 240, 600},
	})

	// InvalidInputsTotal counts submissions that could not be parsed.
	InvalidInputsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_invalid_inputs_total",
		Help: "Submissions with non-numeric input",
	})

	// FeedFetchesTotal counts feed fetches by feed and outcome.
	FeedFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_feed_fetches_total",
		Help: "Total feed fetches",
	}, []string{"feed", "outcome"})

	// FeedFetchLatency tracks feed round-trip time.
	FeedFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_feed_fetch_latency_seconds",
		Help:    "Feed fetch latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"feed"})

	// LatestPrice is the most recent SOL price in USD.
	LatestPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_sol_price_usd",
		Help: "Latest SOL price in USD",
	})

	// LatestRate is the most recent USD→target multiplier.
	LatestRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vault_fx_rate",
		Help: "Latest USD exchange rate by target currency",
	}, []string{"target"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_http_request_duration_seconds",
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

		// Route pattern keeps the path label low-cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
