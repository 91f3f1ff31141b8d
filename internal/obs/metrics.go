package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// ReconcileRows counts light point rows by reconciliation action.
	ReconcileRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighting_reconcile_rows_total",
			Help: "Light point rows written by reconciliation, by action.",
		},
		[]string{"action"},
	)

	// ReconcileBatches counts executed batches by phase and outcome.
	ReconcileBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighting_reconcile_batches_total",
			Help: "Reconciliation batches by phase and status.",
		},
		[]string{"phase", "status"},
	)

	// OrphansRemoved counts dangling light point references removed by the sweep.
	OrphansRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lighting_orphan_references_removed_total",
		Help: "Dangling light point references removed from towns.",
	})

	// Notifications counts dispatched notifications by event and outcome.
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighting_notifications_total",
			Help: "Notifications dispatched, by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	// Lifecycle counts report and operation creations by outcome.
	Lifecycle = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighting_lifecycle_total",
			Help: "Fault lifecycle events, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	initOnce sync.Once
)

// Init registers the metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			ReconcileRows, ReconcileBatches, OrphansRemoved, Notifications, Lifecycle,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests. The path label is the
// matched chi route pattern so ids do not explode label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := CanonicalPath(r)
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// CanonicalPath returns the route pattern that served r, or a bounded
// placeholder when no route matched.
func CanonicalPath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return strings.TrimSuffix(p, "/*")
		}
	}
	if r.URL.Path == "" || r.URL.Path == "/" {
		return "/"
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
