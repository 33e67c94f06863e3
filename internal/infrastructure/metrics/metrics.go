package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the application's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	TaskMutations       *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	RemindersArmed      prometheus.Gauge
	RemindersDispatched *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		TaskMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_task_mutations_total",
				Help: "Successful task store mutations by operation",
			},
			[]string{"op"},
		),
		PersistenceFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskflow_persistence_failures_total",
				Help: "Storage reads or writes that failed and fell back to memory",
			},
		),
		RemindersArmed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskflow_reminders_armed",
				Help: "Reminder timers currently pending",
			},
		),
		RemindersDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_reminders_dispatched_total",
				Help: "Reminders delivered, by channel (native or banner)",
			},
			[]string{"channel"},
		),
	}

	m.Registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.TaskMutations,
		m.PersistenceFailures,
		m.RemindersArmed,
		m.RemindersDispatched,
		collectors.NewGoCollector(),
	)

	return m
}

// Mutation counts a successful store mutation
func (m *Metrics) Mutation(op string) {
	if m == nil {
		return
	}
	m.TaskMutations.WithLabelValues(op).Inc()
}

// PersistenceFailure counts a swallowed storage failure
func (m *Metrics) PersistenceFailure() {
	if m == nil {
		return
	}
	m.PersistenceFailures.Inc()
}

// SetArmed records the number of pending reminder timers
func (m *Metrics) SetArmed(n int) {
	if m == nil {
		return
	}
	m.RemindersArmed.Set(float64(n))
}

// Dispatched counts a delivered reminder
func (m *Metrics) Dispatched(channel string) {
	if m == nil {
		return
	}
	m.RemindersDispatched.WithLabelValues(channel).Inc()
}
