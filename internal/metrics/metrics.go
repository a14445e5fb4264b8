// Package metrics exposes Prometheus instrumentation for the processing
// service. All collectors live on a private registry so tests can create
// isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing,
// so components can be wired without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted  prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsFailed     *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	workersBusy    prometheus.Gauge
	queueDepth     prometheus.Gauge
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	fetches        prometheus.Counter
}

// New creates a Metrics instance on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftd_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		}),
		jobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftd_jobs_completed_total",
			Help: "Total number of jobs that reached completed",
		}),
		jobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driftd_jobs_failed_total",
			Help: "Total number of jobs that reached failed, by cause category",
		}, []string{"category"}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "driftd_job_duration_seconds",
			Help:    "Wall-clock duration of job execution from processing to terminal state",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~68m
		}),
		workersBusy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "driftd_workers_busy",
			Help: "Number of worker slots currently executing a job",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "driftd_queue_depth",
			Help: "Number of jobs waiting for a worker slot",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftd_cache_hits_total",
			Help: "Total number of cache acquisitions served from a valid entry",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftd_cache_misses_total",
			Help: "Total number of cache acquisitions that required a fetch",
		}),
		cacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftd_cache_evictions_total",
			Help: "Total number of cache entries evicted",
		}),
		fetches: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftd_fetches_total",
			Help: "Total number of upstream media fetches performed",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobSubmitted() {
	if m != nil {
		m.jobsSubmitted.Inc()
	}
}

func (m *Metrics) JobCompleted(durationSeconds float64) {
	if m != nil {
		m.jobsCompleted.Inc()
		m.jobDuration.Observe(durationSeconds)
	}
}

func (m *Metrics) JobFailed(category string, durationSeconds float64) {
	if m != nil {
		m.jobsFailed.WithLabelValues(category).Inc()
		m.jobDuration.Observe(durationSeconds)
	}
}

func (m *Metrics) WorkerBusy(delta float64) {
	if m != nil {
		m.workersBusy.Add(delta)
	}
}

func (m *Metrics) QueueDepth(delta float64) {
	if m != nil {
		m.queueDepth.Add(delta)
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) CacheEviction() {
	if m != nil {
		m.cacheEvictions.Inc()
	}
}

func (m *Metrics) FetchPerformed() {
	if m != nil {
		m.fetches.Inc()
	}
}
