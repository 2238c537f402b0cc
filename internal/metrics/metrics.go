// Package metrics provides Prometheus metrics for the gltfview server.
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
			Name: "gltfview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gltfview_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Load lifecycle metrics
	loadAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gltfview_load_attempts_total",
			Help: "Load attempts by outcome (displayed, error, superseded)",
		},
		[]string{"source", "outcome"},
	)

	loadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gltfview_load_errors_total",
			Help: "Classified load errors by kind",
		},
		[]string{"kind"},
	)

	loadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gltfview_load_duration_seconds",
			Help:    "Time from load request to a settled outcome",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	sessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gltfview_session_state",
			Help: "1 for the current session state, 0 otherwise",
		},
		[]string{"state"},
	)

	// Object URL metrics
	objectURLsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gltfview_object_urls_active",
			Help: "Number of allocated object URLs not yet released",
		},
	)

	objectURLsAllocated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gltfview_object_urls_allocated_total",
			Help: "Total object URLs allocated",
		},
	)

	// Validation metrics
	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gltfview_validations_total",
			Help: "Validation runs by result (ok, issues, dropped, failed)",
		},
		[]string{"result"},
	)

	// Remote fetch metrics
	remoteFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gltfview_remote_fetch_duration_seconds",
			Help:    "Remote asset fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	remoteFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gltfview_remote_fetches_total",
			Help: "Total remote asset fetches",
		},
		[]string{"scheme", "status"},
	)

	remoteBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gltfview_remote_bytes_total",
			Help: "Total bytes read from remote asset sources",
		},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gltfview_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gltfview_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gltfview_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gltfview_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gltfview_auth_attempts_total",
			Help: "Bearer token checks by result",
		},
		[]string{"result"},
	)

	// History metrics
	historyWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gltfview_history_writes_total",
			Help: "Load history writes by status",
		},
		[]string{"status"},
	)
)

var sessionStates = []string{"empty", "loading", "displayed", "error"}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLoad records a settled load attempt.
func RecordLoad(source, outcome string, duration time.Duration) {
	loadAttemptsTotal.WithLabelValues(source, outcome).Inc()
	loadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordLoadError records a classified load error.
func RecordLoadError(kind string) {
	loadErrorsTotal.WithLabelValues(kind).Inc()
}

// SetSessionState marks state as the current session state.
func SetSessionState(state string) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
}

// RecordObjectURLAllocated records an object URL allocation.
func RecordObjectURLAllocated() {
	objectURLsAllocated.Inc()
}

// SetObjectURLsActive sets the number of live object URLs.
func SetObjectURLsActive(count int) {
	objectURLsActive.Set(float64(count))
}

// RecordValidation records a validation run.
func RecordValidation(result string) {
	validationsTotal.WithLabelValues(result).Inc()
}

// RecordRemoteFetch records a remote asset fetch.
func RecordRemoteFetch(scheme string, bytes int64, duration time.Duration, success bool) {
	remoteFetchDuration.WithLabelValues(scheme).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	remoteFetchesTotal.WithLabelValues(scheme, status).Inc()
	remoteBytesTotal.Add(float64(bytes))
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	s3OperationsTotal.WithLabelValues(operation, status).Inc()
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordAuthAttempt records a bearer token check.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordHistoryWrite records a history store write.
func RecordHistoryWrite(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	historyWritesTotal.WithLabelValues(status).Inc()
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

// Middleware returns HTTP middleware that records request metrics.
// The route pattern is used as the path label to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
