// Package jobmetrics holds the Prometheus collectors shared by background jobs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics groups job collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	expired     prometheus.Counter
	pruned      prometheus.Counter
}

var (
	sharedOnce    sync.Once
	sharedMetrics *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer
// returns a process-wide instance bound to the default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	sharedOnce.Do(func() {
		sharedMetrics = register(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

func register(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Job executions by task type and outcome.",
		}, []string{"job", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Subsystem: "jobs",
			Name:      "failures_total",
			Help:      "Failed job executions by task type.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "odyssey",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job execution time.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "odyssey",
			Subsystem: "jobs",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per task type.",
		}, []string{"job"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "odyssey",
			Subsystem: "quotations",
			Name:      "expired_total",
			Help:      "Quotations moved to EXPIRED by the validity sweep.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "odyssey",
			Subsystem: "idempotency",
			Name:      "keys_pruned_total",
			Help:      "Checkout idempotency keys removed by the cleanup job.",
		}),
	}
	reg.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.expired, m.pruned)
	return m
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run outcome and returns err unchanged so handlers can
// write `return tracker.End(err)`.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, outcomeFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, outcomeSuccess).Inc()
	m.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	return nil
}

// AddExpired counts quotations expired by one sweep.
func (m *Metrics) AddExpired(count int) {
	if m != nil && count > 0 {
		m.expired.Add(float64(count))
	}
}

// AddPruned counts idempotency keys removed by one cleanup run.
func (m *Metrics) AddPruned(count int64) {
	if m != nil && count > 0 {
		m.pruned.Add(float64(count))
	}
}
