// Package telemetry exposes low-overhead request metrics through the
// Prometheus registry served at /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loom_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	inflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loom_http_requests_in_flight",
		Help: "HTTP requests currently being served.",
	})
)

// statusRecorder captures the response code written by the handler.
// Flush is forwarded so SSE streaming keeps working behind the wrapper.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts, latency and in-flight gauge for
// every request. Routes are bucketed by path prefix to bound label
// cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inflight.Inc()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		inflight.Dec()
		route := routeLabel(r.URL.Path)
		requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses ids out of paths so each label stays low
// cardinality.
func routeLabel(path string) string {
	switch {
	case path == "/healthz" || path == "/readyz" || path == "/metrics":
		return path
	case strings.HasPrefix(path, "/v1/conversations"):
		rest := strings.Trim(strings.TrimPrefix(path, "/v1/conversations"), "/")
		switch {
		case rest == "":
			return "/v1/conversations"
		case strings.HasSuffix(rest, "/turns"):
			return "/v1/conversations/{id}/turns"
		case strings.Contains(rest, "/messages"):
			return "/v1/conversations/{id}/messages/{msgID}"
		default:
			return "/v1/conversations/{id}"
		}
	default:
		return "other"
	}
}
