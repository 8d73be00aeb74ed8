package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/wrecker/internal/history"
)

func TestRecordOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordOp(history.Op{Process: 0, Type: history.Invoke, F: "read"})
	m.RecordOp(history.Op{Process: 0, Type: history.OK, F: "read"})
	m.RecordOp(history.Op{Process: history.Nemesis, Type: history.Invoke, F: "partition:start"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("invoke", "read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("ok", "read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nemesis.WithLabelValues("partition:start")))
}

func TestRecordRestart(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRestart("n2")
	m.RecordRestart("n2")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.restarts.WithLabelValues("n2")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOp(history.Op{Type: history.OK, F: "read"})
		m.RecordRestart("n1")
	})
}
