// Copyright 2024-2026 Aiku AI

package portal

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the mirror does. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Events            *prometheus.CounterVec
	Correlations      *prometheus.CounterVec
	ToleranceWarnings *prometheus.CounterVec
	Mutations         *prometheus.CounterVec
	LookupFailures    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slackportal",
			Name:      "events_total",
			Help:      "Realtime events observed, by direction, event kind and planned action.",
		}, []string{"direction", "kind", "action"}),
		Correlations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slackportal",
			Name:      "correlations_total",
			Help:      "Correlation searches, by searched side and result.",
		}, []string{"side", "result"}),
		ToleranceWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slackportal",
			Name:      "tolerance_warnings_total",
			Help:      "Correlation matches closer to a window bound than the tolerance.",
		}, []string{"side", "bound"}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slackportal",
			Name:      "mutations_total",
			Help:      "Outbound mutations, by target side, operation and result.",
		}, []string{"side", "op", "result"}),
		LookupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slackportal",
			Name:      "identity_lookup_failures_total",
			Help:      "User identities that could not be resolved.",
		}, []string{"side"}),
	}
	if reg != nil {
		reg.MustRegister(m.Events, m.Correlations, m.ToleranceWarnings, m.Mutations, m.LookupFailures)
	}
	return m
}

func (m *Metrics) event(direction string, kind EventKind, action ActionKind) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(direction, kind.String(), action.String()).Inc()
}

func (m *Metrics) correlation(side, result string) {
	if m == nil {
		return
	}
	m.Correlations.WithLabelValues(side, result).Inc()
}

func (m *Metrics) toleranceWarning(side string, bound Bound) {
	if m == nil {
		return
	}
	m.ToleranceWarnings.WithLabelValues(side, string(bound)).Inc()
}

func (m *Metrics) mutation(side, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Mutations.WithLabelValues(side, op, result).Inc()
}

func (m *Metrics) lookupFailure(side string) {
	if m == nil {
		return
	}
	m.LookupFailures.WithLabelValues(side).Inc()
}
