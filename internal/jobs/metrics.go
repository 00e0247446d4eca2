// Package jobmetrics instruments background backend triggers.
package jobmetrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics holds the worker collectors on their own registry so the worker
// process can expose them without the web process's collectors.
type Metrics struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
}

// NewMetrics builds and registers the collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xuanji_jobs_total",
			Help: "Backend trigger executions by task type, endpoint and status.",
		}, []string{"task", "endpoint", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xuanji_job_duration_seconds",
			Help:    "Duration of backend trigger executions.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"task"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xuanji_jobs_inflight",
			Help: "Backend triggers currently executing.",
		}, []string{"task"}),
	}
	registry.MustRegister(m.runs, m.duration, m.inflight)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Tracker instruments one execution.
type Tracker struct {
	metrics  *Metrics
	task     string
	endpoint string
	start    time.Time
}

// Track starts timing an execution of task against endpoint.
func (m *Metrics) Track(task, endpoint string) *Tracker {
	if m != nil {
		m.inflight.WithLabelValues(task).Inc()
	}
	return &Tracker{metrics: m, task: task, endpoint: endpoint, start: time.Now()}
}

// End records the outcome and returns err untouched. Errors wrapping
// asynq.SkipRetry count as skipped rather than failed.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	m := t.metrics
	m.inflight.WithLabelValues(t.task).Dec()
	m.runs.WithLabelValues(t.task, t.endpoint, Status(err)).Inc()
	m.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// Status classifies a handler error.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	default:
		return StatusFailure
	}
}
