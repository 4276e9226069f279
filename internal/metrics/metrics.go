// Package metrics exposes Prometheus instruments for the triage client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements triage.Observer on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestLatency *prometheus.HistogramVec
	pollAttempts   *prometheus.CounterVec
	jobOutcomes    *prometheus.CounterVec
	jobWait        prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailtriage_backend_request_duration_seconds",
				Help:    "Latency of requests to the analysis backend",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"endpoint", "status"},
		),
		pollAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtriage_poll_attempts_total",
				Help: "Status queries issued while waiting for jobs, by reported state",
			},
			[]string{"state"},
		),
		jobOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtriage_jobs_total",
				Help: "Jobs resolved by the client, by outcome",
			},
			[]string{"outcome"},
		),
		jobWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailtriage_job_wait_seconds",
			Help:    "Time spent waiting for a job to reach a terminal state",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RequestDone(endpoint string, status int, d time.Duration) {
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestLatency.WithLabelValues(endpoint, label).Observe(d.Seconds())
}

func (m *Metrics) Polled(state string) {
	m.pollAttempts.WithLabelValues(state).Inc()
}

func (m *Metrics) JobDone(outcome string, d time.Duration) {
	m.jobOutcomes.WithLabelValues(outcome).Inc()
	m.jobWait.Observe(d.Seconds())
}

// Gatherer is used by tests to read collected values.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
