package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "dispatch"

// Metrics holds the collectors fed by the lifecycle hooks.
type Metrics struct {
	registry *prometheus.Registry

	nodeVisits     *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	turns          *prometheus.CounterVec
	turnDuration   prometheus.Histogram
	turnSteps      prometheus.Histogram
	confirmations  *prometheus.CounterVec
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a private registry, along with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_visits_total",
			Help:      "Total number of workflow node visits.",
		}, []string{"node_id"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "node_duration_seconds",
			Help:      "Time spent in each workflow node.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"node_id"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "turns_total",
			Help:      "Turns processed by final status.",
		}, []string{"status"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "turn_duration_seconds",
			Help:      "End to end turn latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		turnSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "turn_steps",
			Help:      "Nodes visited per turn.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "confirmations_total",
			Help:      "Confirm and decline calls by final status.",
		}, []string{"status"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "actions_total",
			Help:      "Executed actions by outcome.",
		}, []string{"action", "outcome"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of action handler calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}
	m.registry.MustRegister(
		m.nodeVisits, m.nodeDuration,
		m.turns, m.turnDuration, m.turnSteps, m.confirmations,
		m.actions, m.actionDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks records node visits, turn outcomes and action executions.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.NodeID).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(e.NodeID).Observe(e.Duration.Seconds())
		},
		OnTurnComplete: func(_ context.Context, e *domain.TurnEvent) {
			m.turns.WithLabelValues(string(e.Status)).Inc()
			m.turnDuration.Observe(e.Duration.Seconds())
			m.turnSteps.Observe(float64(e.Steps))
			if e.Resumed {
				m.confirmations.WithLabelValues(string(e.Status)).Inc()
			}
		},
		OnActionExecuted: func(_ context.Context, e *domain.ActionEvent) {
			outcome := "ok"
			if !e.OK {
				outcome = "failed"
			}
			m.actions.WithLabelValues(e.Action, outcome).Inc()
			m.actionDuration.WithLabelValues(e.Action).Observe(e.Duration.Seconds())
		},
	}
}
