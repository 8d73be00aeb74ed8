// Package metrics instruments a run with prometheus counters. A nil
// *Metrics is valid and records nothing, so callers never guard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/wrecker/internal/history"
)

// Metrics holds the counters one run increments.
type Metrics struct {
	ops      *prometheus.CounterVec
	nemesis  *prometheus.CounterVec
	restarts *prometheus.CounterVec
}

// New registers the run counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wrecker",
			Name:      "ops_total",
			Help:      "History operations recorded, by type and function.",
		}, []string{"type", "f"}),
		nemesis: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wrecker",
			Name:      "nemesis_injections_total",
			Help:      "Fault injections invoked, by function.",
		}, []string{"f"}),
		restarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wrecker",
			Name:      "node_restarts_total",
			Help:      "Node restarts issued by the harness, by node.",
		}, []string{"node"}),
	}
}

// RecordOp counts one recorded history operation.
func (m *Metrics) RecordOp(op history.Op) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(string(op.Type), op.F).Inc()
	if op.Process == history.Nemesis && op.Type == history.Invoke {
		m.nemesis.WithLabelValues(op.F).Inc()
	}
}

// RecordRestart counts one restart of a node.
func (m *Metrics) RecordRestart(node string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(node).Inc()
}
