package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the sync engine. Each Metrics owns
// its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	TransportCalls *prometheus.CounterVec
	PollRuns       *prometheus.CounterVec
	PollFailures   *prometheus.CounterVec
	StoreMessages  prometheus.Gauge
	CachedItems    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		TransportCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doughnation",
			Subsystem: "transport",
			Name:      "calls_total",
			Help:      "Backend calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		PollRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doughnation",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Periodic task runs by task kind.",
		}, []string{"task"}),
		PollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doughnation",
			Subsystem: "scheduler",
			Name:      "failures_total",
			Help:      "Failed periodic task runs by task kind.",
		}, []string{"task"}),
		StoreMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doughnation",
			Subsystem: "store",
			Name:      "messages",
			Help:      "Messages held in the session message store.",
		}),
		CachedItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doughnation",
			Subsystem: "inventory",
			Name:      "cached_items",
			Help:      "Inventory items with a cached status.",
		}),
	}
	m.Registry.MustRegister(m.TransportCalls, m.PollRuns, m.PollFailures, m.StoreMessages, m.CachedItems)
	return m
}

// The helpers below accept a nil receiver so components can run without
// metrics.

func (m *Metrics) ObserveCall(op, outcome string) {
	if m == nil {
		return
	}
	m.TransportCalls.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveRun(task string, err error) {
	if m == nil {
		return
	}
	m.PollRuns.WithLabelValues(task).Inc()
	if err != nil {
		m.PollFailures.WithLabelValues(task).Inc()
	}
}

func (m *Metrics) SetStoreSize(n int) {
	if m == nil {
		return
	}
	m.StoreMessages.Set(float64(n))
}

func (m *Metrics) SetCachedItems(n int) {
	if m == nil {
		return
	}
	m.CachedItems.Set(float64(n))
}
