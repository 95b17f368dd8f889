package job

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the Prometheus vectors the scheduler reports against, one
// counter/histogram pair per module type. Grounded on
// module.MetricsCollector's own-registry-per-collector shape
// (_examples/GoCodeAlone-workflow/module/metrics.go), narrowed from the
// teacher's broad HTTP/workflow metric set to the scheduler's own
// execution counters.
type Metrics struct {
	registry *prometheus.Registry

	Executions *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	CacheHits  *prometheus.CounterVec
}

// NewMetrics creates a Metrics bundle backed by its own Prometheus
// registry, so job metrics can be scraped independently of any host
// application's default registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	executions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kiara_job_executions_total",
		Help: "Total number of job executions by module type and outcome.",
	}, []string{"module_type", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kiara_job_duration_seconds",
		Help:    "Duration of job executions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"module_type"})

	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kiara_job_cache_hits_total",
		Help: "Total number of job executions served from cache.",
	}, []string{"module_type"})

	reg.MustRegister(executions, duration, cacheHits)

	return &Metrics{registry: reg, Executions: executions, Duration: duration, CacheHits: cacheHits}
}

// Registry exposes the underlying Prometheus registry for wiring into an
// HTTP handler (e.g. promhttp.HandlerFor).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (s *Scheduler) recordMetrics(moduleType string, rec Record) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if rec.Status == StatusFailed {
		status = "failure"
	}
	s.metrics.Executions.WithLabelValues(moduleType, status).Inc()
	s.metrics.Duration.WithLabelValues(moduleType).Observe(rec.Duration().Seconds())
	if rec.Cached {
		s.metrics.CacheHits.WithLabelValues(moduleType).Inc()
	}
}
