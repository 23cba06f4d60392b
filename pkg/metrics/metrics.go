// Package metrics holds the console's prometheus collectors.
//
// All recording methods are nil-safe so components can be constructed without
// metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autodl"

type Metrics struct {
	GuardDecisions *prometheus.CounterVec
	Events         *prometheus.CounterVec
	ChannelState   *prometheus.GaugeVec
	Listeners      *prometheus.GaugeVec
}

// New registers the collectors on reg. A nil reg uses a fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		GuardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Navigation guard decisions by action and reason.",
		}, []string{"action", "reason"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Channel events seen by a consumer, by decoded variant.",
		}, []string{"consumer", "variant"}),
		ChannelState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_state",
			Help:      "1 for the channel's current state, 0 otherwise.",
		}, []string{"state"}),
		Listeners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_listeners",
			Help:      "Registered channel listeners by event name.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.GuardDecisions, m.Events, m.ChannelState, m.Listeners)
	return m
}

func (m *Metrics) GuardDecision(action, reason string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(action, reason).Inc()
}

func (m *Metrics) Event(consumer, variant string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(consumer, variant).Inc()
}

// SetChannelState marks current as 1 and every other known state as 0.
func (m *Metrics) SetChannelState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.ChannelState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) SetListeners(event string, n int) {
	if m == nil {
		return
	}
	m.Listeners.WithLabelValues(event).Set(float64(n))
}
