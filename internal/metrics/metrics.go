package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP requests and the
// tracking engine.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	jobsTotal        *prometheus.CounterVec
	rateLimitsTotal  prometheus.Counter
	snapshotsTotal   prometheus.Counter
	reelsRefreshed   prometheus.Counter
	pipelineDuration prometheus.Histogram
}

// NewCollector constructs a collector on a private registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gramtrack",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gramtrack",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gramtrack",
			Subsystem: "tracker",
			Name:      "jobs_total",
			Help:      "Tracking jobs by terminal outcome.",
		}, []string{"outcome"}),
		rateLimitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gramtrack",
			Subsystem: "tracker",
			Name:      "rate_limits_total",
			Help:      "Upstream rate-limit responses observed.",
		}),
		snapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gramtrack",
			Subsystem: "tracker",
			Name:      "snapshots_written_total",
			Help:      "Profile snapshots persisted.",
		}),
		reelsRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gramtrack",
			Subsystem: "tracker",
			Name:      "reels_refreshed_total",
			Help:      "Reel rows upserted during reconciliation.",
		}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gramtrack",
			Subsystem: "tracker",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end tracking pipeline duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
	}

	for _, col := range []prometheus.Collector{
		c.requestDuration, c.requestTotal, c.jobsTotal,
		c.rateLimitsTotal, c.snapshotsTotal, c.reelsRefreshed,
		c.pipelineDuration,
	} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler exposing the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// JobFinished records a tracking job's terminal outcome and duration.
func (c *Collector) JobFinished(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.jobsTotal.WithLabelValues(outcome).Inc()
	c.pipelineDuration.Observe(duration.Seconds())
}

// RateLimited counts one upstream rate-limit response.
func (c *Collector) RateLimited() {
	if c == nil {
		return
	}
	c.rateLimitsTotal.Inc()
}

// SnapshotWritten counts one persisted snapshot.
func (c *Collector) SnapshotWritten() {
	if c == nil {
		return
	}
	c.snapshotsTotal.Inc()
}

// ReelRefreshed counts one reel upsert.
func (c *Collector) ReelRefreshed() {
	if c == nil {
		return
	}
	c.reelsRefreshed.Inc()
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
