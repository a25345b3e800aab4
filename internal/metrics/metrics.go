package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reversal result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultAborted = "aborted"
)

// Suppression reason label values.
const (
	ReasonLoopGuard     = "loop_guard"
	ReasonNoActor       = "no_actor"
	ReasonNotQualifying = "not_qualifying"
)

// Metrics bundles the Prometheus collectors for one daemon instance.
type Metrics struct {
	// registry owns all collectors below.
	registry *prometheus.Registry

	// ReversalsTotal counts finished reversal tasks by result.
	ReversalsTotal *prometheus.CounterVec
	// SuppressedTotal counts ignored state changes by reason.
	SuppressedTotal *prometheus.CounterVec
	// NotificationsTotal counts notification dispatch outcomes.
	NotificationsTotal *prometheus.CounterVec
	// OverridesTotal counts consumed override actions by kind.
	OverridesTotal *prometheus.CounterVec
	// PendingTasks tracks the number of in-flight reversal tasks.
	PendingTasks prometheus.Gauge
}

// New creates a metric set backed by its own registry, so tests and
// multiple instances never collide on collector registration.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		ReversalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spring_reversals_total",
			Help: "Finished reversal tasks by result.",
		}, []string{"result"}),
		SuppressedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spring_suppressed_changes_total",
			Help: "State changes ignored before scheduling, by reason.",
		}, []string{"reason"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spring_notifications_total",
			Help: "Notification dispatch outcomes.",
		}, []string{"result"}),
		OverridesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spring_overrides_total",
			Help: "Override actions applied, by kind.",
		}, []string{"kind"}),
		PendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spring_pending_reversal_tasks",
			Help: "Reversal tasks currently scheduled or waiting.",
		}),
	}

	registry.MustRegister(
		m.ReversalsTotal,
		m.SuppressedTotal,
		m.NotificationsTotal,
		m.OverridesTotal,
		m.PendingTasks,
	)

	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
