// Package metrics holds the Prometheus collectors for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests can build as many as they like. All
// methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration    *prometheus.HistogramVec
	RequestsInFlight   prometheus.Gauge
	Predictions        *prometheus.CounterVec
	PredictionDuration prometheus.Histogram
	HealthChecks       *prometheus.CounterVec
	EngagementDeltas   *prometheus.CounterVec
	StoreOps           *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hairtype_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds, by route, method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hairtype_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hairtype_predictions_total",
				Help: "Classifier invocations, by result.",
			},
			[]string{"result"},
		),
		PredictionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hairtype_prediction_duration_seconds",
				Help:    "Time spent in the classifier per prediction.",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		HealthChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hairtype_health_checks_total",
				Help: "Synthetic health check predictions, by result.",
			},
			[]string{"result"},
		),
		EngagementDeltas: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hairtype_engagement_deltas_total",
				Help: "Sum of engagement deltas applied, by counter.",
			},
			[]string{"counter"},
		),
		StoreOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hairtype_store_operations_total",
				Help: "Product store operations, by operation and result.",
			},
			[]string{"op", "result"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hairtype_cache_hits_total",
				Help: "Total product cache hits.",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hairtype_cache_misses_total",
				Help: "Total product cache misses.",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestDuration,
		m.RequestsInFlight,
		m.Predictions,
		m.PredictionDuration,
		m.HealthChecks,
		m.EngagementDeltas,
		m.StoreOps,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}

func (m *Metrics) ObservePrediction(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.Predictions.WithLabelValues(result).Inc()
	m.PredictionDuration.Observe(d.Seconds())
}

// ObserveHealthCheck counts a synthetic health check prediction. The
// prediction metrics only count analyze requests.
func (m *Metrics) ObserveHealthCheck(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.HealthChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDeltas(deltas map[string]float64) {
	if m == nil {
		return
	}
	for name, d := range deltas {
		// Counters cannot go down; negative deltas are tracked separately.
		if d >= 0 {
			m.EngagementDeltas.WithLabelValues(name).Add(d)
		} else {
			m.EngagementDeltas.WithLabelValues(name + "_negative").Add(-d)
		}
	}
}

func (m *Metrics) ObserveStore(op string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.StoreOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

// Middleware records request duration and in-flight count. Routes are
// labelled by their pattern, not the raw path.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.RequestDuration.WithLabelValues(route, c.Request.Method, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
