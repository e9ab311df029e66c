// Package metrics exposes batch counters in Prometheus form and can push
// them to a Pushgateway when a run finishes.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"hogsim/internal/collector"
	"hogsim/internal/core"
)

// JobName is the Pushgateway job label.
const JobName = "hogsim"

// Metrics holds the batch metrics on a private registry, so several
// batches in one process never collide on registration.
//
// Metrics:
//   - hogsim_sessions_total{scenario,status}
//   - hogsim_actions_total{action,status}
//   - hogsim_action_duration_seconds{action}
//   - hogsim_events_total{result}
//   - hogsim_personas_due
//   - hogsim_personas_deferred
//   - hogsim_last_run_timestamp_seconds
type Metrics struct {
	reg *prometheus.Registry

	Sessions       *prometheus.CounterVec
	Actions        *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	Events         *prometheus.CounterVec
	PersonasDue    prometheus.Gauge
	Deferred       prometheus.Gauge
	LastRun        prometheus.Gauge
}

// New creates and registers the batch metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hogsim_sessions_total",
			Help: "Persona sessions by scenario and result",
		}, []string{"scenario", "status"}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hogsim_actions_total",
			Help: "Actions by name and result",
		}, []string{"action", "status"}),
		ActionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hogsim_action_duration_seconds",
			Help:    "Wall time spent in each action",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"action"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hogsim_events_total",
			Help: "Analytics events by delivery result",
		}, []string{"result"}),
		PersonasDue: f.NewGauge(prometheus.GaugeOpts{
			Name: "hogsim_personas_due",
			Help: "Personas due at the start of the last batch",
		}),
		Deferred: f.NewGauge(prometheus.GaugeOpts{
			Name: "hogsim_personas_deferred",
			Help: "Due personas left for a later batch",
		}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "hogsim_last_run_timestamp_seconds",
			Help: "Unix time the last batch finished",
		}),
	}
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Report implements core.Reporter.
func (m *Metrics) Report(e core.Event) {
	if e.Step == "" {
		m.Sessions.WithLabelValues(e.Scenario, string(e.Status)).Inc()
		return
	}
	m.Actions.WithLabelValues(e.Step, string(e.Status)).Inc()
	m.ActionDuration.WithLabelValues(e.Step).Observe(e.Duration.Seconds())
}

// ObserveSummary records batch-level figures.
func (m *Metrics) ObserveSummary(s collector.Summary, finished time.Time) {
	m.PersonasDue.Set(float64(s.Due))
	m.Deferred.Set(float64(s.Deferred))
	m.Events.WithLabelValues("sent").Add(float64(s.EventsSent))
	m.Events.WithLabelValues("failed").Add(float64(s.EventsFailed))
	m.Events.WithLabelValues("invalid").Add(float64(s.EventsInvalid))
	m.LastRun.Set(float64(finished.Unix()))
}

// Push sends every metric to the Pushgateway at url under JobName.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, JobName).Gatherer(m.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
