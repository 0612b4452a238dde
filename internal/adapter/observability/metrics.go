package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	MessagesProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_messages_processed_total",
			Help: "Total number of stream entries processed and acked",
		},
	)
	MessagesFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_failed_total",
			Help: "Total number of stream entries that failed, by reason",
		},
		[]string{"reason"},
	)
	MessagesRetriedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_messages_retried_total",
			Help: "Total number of stream entries left for redelivery",
		},
	)

	ClassifierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_requests_total",
			Help: "Total number of classifier calls by implementation and operation",
		},
		[]string{"model", "operation"},
	)
	ClassifierRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_request_duration_seconds",
			Help:    "Classifier call duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
		[]string{"model", "operation"},
	)

	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Aggregate cache lookups by outcome (hit, miss, error)",
		},
		[]string{"outcome"},
	)

	AlertsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_fired_total",
			Help: "Total number of alerts persisted, by type",
		},
		[]string{"type"},
	)

	PushSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_subscribers",
			Help: "Number of connected push subscribers",
		},
	)
	PushFramesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_frames_sent_total",
			Help: "Total number of push frames sent, by frame type",
		},
		[]string{"type"},
	)
)

// InitMetrics registers all Prometheus metrics once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(MessagesProcessedTotal)
	prometheus.MustRegister(MessagesFailedTotal)
	prometheus.MustRegister(MessagesRetriedTotal)
	prometheus.MustRegister(ClassifierRequestsTotal)
	prometheus.MustRegister(ClassifierRequestDuration)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(AlertsFiredTotal)
	prometheus.MustRegister(PushSubscribers)
	prometheus.MustRegister(PushFramesSentTotal)
}

// ObserveClassifier records one classifier call.
func ObserveClassifier(model, operation string, dur time.Duration) {
	ClassifierRequestsTotal.WithLabelValues(model, operation).Inc()
	ClassifierRequestDuration.WithLabelValues(model, operation).Observe(dur.Seconds())
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
