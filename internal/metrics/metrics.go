// Package metrics provides Prometheus metrics for the burrow server.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Storage gateway metrics
	storageOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_storage_ops_total",
			Help: "Total storage gateway operations",
		},
		[]string{"op", "status"},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_upload_bytes_total",
			Help: "Total bytes accepted by uploads",
		},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_download_bytes_total",
			Help: "Total bytes served by downloads",
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_auth_attempts_total",
			Help: "Total bearer token verifications",
		},
		[]string{"result"},
	)

	escapeAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_escape_attempts_total",
			Help: "Total requests rejected for escaping a tenant root",
		},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)

	// Watcher metrics
	watcherEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_watcher_events_total",
			Help: "Total filesystem events observed by the watcher",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStorageOp records a gateway operation and its outcome.
func RecordStorageOp(op, status string) {
	storageOpsTotal.WithLabelValues(op, status).Inc()
}

// AddUploadBytes adds to the upload byte counter.
func AddUploadBytes(n int64) {
	uploadBytesTotal.Add(float64(n))
}

// AddDownloadBytes adds to the download byte counter.
func AddDownloadBytes(n int64) {
	downloadBytesTotal.Add(float64(n))
}

// RecordAuthAttempt records a bearer token verification.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordEscapeAttempt records a confinement rejection.
func RecordEscapeAttempt() {
	escapeAttemptsTotal.Inc()
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordWatcherEvent records one observed filesystem event.
func RecordWatcherEvent() {
	watcherEventsTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
// The route label uses the mux pattern, not the raw URL, to keep
// cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
