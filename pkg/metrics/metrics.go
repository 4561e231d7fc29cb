// Package metrics exposes engine activity as prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records trigger lifecycle events. A nil *Metrics is valid and
// records nothing, so callers never need to guard their call sites.
type Metrics struct {
	registry *prometheus.Registry

	triggersTotal   prometheus.Counter
	attemptsTotal   prometheus.Counter
	retriesTotal    prometheus.Counter
	failuresTotal   *prometheus.CounterVec
	suppressedTotal prometheus.Counter
	runningTasks    prometheus.Gauge
	triggerDuration prometheus.Histogram
}

// New builds a Metrics backed by its own registry, so multiple instances
// can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		triggersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tayfa_triggers_total",
			Help: "Total task triggers accepted by the engine.",
		}),
		attemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tayfa_agent_attempts_total",
			Help: "Total agent invocation attempts, including retries.",
		}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tayfa_agent_retries_total",
			Help: "Total retried agent invocations.",
		}),
		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tayfa_agent_failures_total",
			Help: "Total terminal agent failures by error type.",
		}, []string{"error_type"}),
		suppressedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tayfa_suppressed_failures_total",
			Help: "Total stream errors suppressed because the task had already been completed.",
		}),
		runningTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tayfa_running_tasks",
			Help: "Number of tasks currently executing.",
		}),
		triggerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "tayfa_trigger_duration_seconds",
			Help: "End-to-end trigger duration in seconds.",
			// Agent runs take minutes, not milliseconds.
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
	}
}

// Handler serves the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTrigger() {
	if m == nil {
		return
	}
	m.triggersTotal.Inc()
}

func (m *Metrics) RecordAttempt() {
	if m == nil {
		return
	}
	m.attemptsTotal.Inc()
}

func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

func (m *Metrics) RecordFailure(errorType string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) RecordSuppressed() {
	if m == nil {
		return
	}
	m.suppressedTotal.Inc()
}

// SetRunningTasks reports the current slot occupancy. The scheduler calls
// it under its own lock, so the value never drifts from the true count.
func (m *Metrics) SetRunningTasks(n int) {
	if m == nil {
		return
	}
	m.runningTasks.Set(float64(n))
}

func (m *Metrics) ObserveTriggerDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.triggerDuration.Observe(d.Seconds())
}
