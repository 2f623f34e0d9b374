package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	alerted  *prometheus.CounterVec
	warmed   prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddAlertedMaterials counts materials reported by low-stock alerts.
func (m *Metrics) AddAlertedMaterials(materials []string) {
	if m == nil {
		return
	}
	for _, name := range materials {
		if name == "" {
			continue
		}
		m.alerted.WithLabelValues(name).Inc()
	}
}

// SetWarmedProducts records the size of the last at-risk projection warmed.
func (m *Metrics) SetWarmedProducts(n int) {
	if m == nil {
		return
	}
	m.warmed.Set(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafe_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafe_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cafe_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	alerted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafe_low_stock_alert_materials_total",
		Help: "Materials named in processed low-stock alerts.",
	}, []string{"material"})
	warmed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cafe_atrisk_warmed_products",
		Help: "At-risk products in the most recent cache warmup.",
	})
	registerer.MustRegister(runs, failures, duration, alerted, warmed)
	return &Metrics{runs: runs, failures: failures, duration: duration, alerted: alerted, warmed: warmed}
}
