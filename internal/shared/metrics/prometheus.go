package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	patientsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patients_created_total",
			Help: "Total number of patients created",
		},
		[]string{"initial_status"},
	)

	ledgerEventsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_appended_total",
			Help: "Total number of patient events appended to the ledger",
		},
		[]string{"event_type"},
	)

	labResultsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_results_ingested_total",
			Help: "Total number of lab test results ingested",
		},
		[]string{"test_status"},
	)

	quarantineOrders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quarantine_orders_total",
			Help: "Total number of quarantine orders",
		},
	)

	exposureContacts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposure_contacts_total",
			Help: "Total number of exposure contact changes",
		},
		[]string{"action"},
	)

	patientQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patient_queries_total",
			Help: "Total number of patient queries",
		},
		[]string{"mode"},
	)

	patientQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "patient_query_duration_seconds",
			Help:    "Patient query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	mirrorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_mirror_failures_total",
			Help: "Total number of ledger events that could not be mirrored to KurrentDB",
		},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern labels requests by their chi route template (e.g.
// /api/v1/patients/{patientID}) so patient ids never become label values.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// --- Business metric helpers ---

// RecordPatientCreated records a patient creation
func RecordPatientCreated(initialStatus string) {
	patientsCreated.WithLabelValues(initialStatus).Inc()
}

// RecordEventAppended records a ledger append
func RecordEventAppended(eventType string) {
	ledgerEventsAppended.WithLabelValues(eventType).Inc()
}

// RecordLabResult records an ingested lab result
func RecordLabResult(testStatus string) {
	labResultsIngested.WithLabelValues(testStatus).Inc()
}

// RecordQuarantineOrder records a quarantine order
func RecordQuarantineOrder() {
	quarantineOrders.Inc()
}

// RecordExposureContact records a contact change ("created", "updated" or "removed")
func RecordExposureContact(action string) {
	exposureContacts.WithLabelValues(action).Inc()
}

// RecordQuery records a patient query by mode ("criteria" or "simple")
func RecordQuery(mode string, duration time.Duration) {
	patientQueriesTotal.WithLabelValues(mode).Inc()
	patientQueryDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordMirrorFailure records events that did not reach the mirror
func RecordMirrorFailure(events int) {
	mirrorFailures.Add(float64(events))
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}
