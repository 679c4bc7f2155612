package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for decaytrack.
type Metrics struct {
	// Engine metrics
	ItemsCreated  prometheus.Counter
	ItemsDeleted  prometheus.Counter
	ReviewsTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	Rebuilds      *prometheus.CounterVec

	// Alert metrics
	DecayChecks     prometheus.Counter
	AlertsPublished *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics. Registration happens
// once per process; later calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			ItemsCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "decaytrack_items_created_total",
				Help: "Total number of knowledge items created",
			}),
			ItemsDeleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "decaytrack_items_deleted_total",
				Help: "Total number of knowledge items deleted",
			}),
			ReviewsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "decaytrack_reviews_total",
					Help: "Total number of reviews submitted",
				},
				[]string{"kind"}, // practice, revision
			),
			QueryDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "decaytrack_query_duration_seconds",
					Help:    "Duration of insights queries in seconds",
					Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
				},
				[]string{"query"},
			),
			Rebuilds: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "decaytrack_projection_rebuilds_total",
					Help: "Items checked by projection rebuilds, by outcome",
				},
				[]string{"result"}, // ok, repaired
			),
			DecayChecks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "decaytrack_decay_checks_total",
				Help: "Total number of decay check passes",
			}),
			AlertsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "decaytrack_alerts_published_total",
					Help: "Decay alerts published",
				},
				[]string{"result"}, // ok, error
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "decaytrack_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "decaytrack_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})
	return sharedMetrics
}

// RecordReview counts a review by kind.
func (m *Metrics) RecordReview(practice bool) {
	kind := "revision"
	if practice {
		kind = "practice"
	}
	m.ReviewsTotal.WithLabelValues(kind).Inc()
}

// RecordQuery observes the duration of an insights query.
func (m *Metrics) RecordQuery(query string, seconds float64) {
	m.QueryDuration.WithLabelValues(query).Observe(seconds)
}

// RecordAlert counts a publish attempt.
func (m *Metrics) RecordAlert(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AlertsPublished.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
