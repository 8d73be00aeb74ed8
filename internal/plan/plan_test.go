package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPlan = `
name: register-partition
nodes: [n1, n2, n3]
concurrency: 5
seed: 42
time_limit: 60s
rate: 50ms
workload:
  keys: [x, y]
  reads: 5
  writes: 3
  cas: 2
nemesis:
  faults: [partition, kill]
  interval: 5s
  recovery: 10s
final_reads: true
`

func TestParse_Valid(t *testing.T) {
	p, err := Parse("plan.yaml", []byte(validPlan))
	require.NoError(t, err)

	assert.Equal(t, "register-partition", p.Name)
	assert.Equal(t, []string{"n1", "n2", "n3"}, p.Nodes)
	assert.Equal(t, 5, p.Concurrency)
	assert.Equal(t, int64(42), p.Seed)
	assert.Equal(t, time.Minute, p.TimeLimit.Std())
	assert.Equal(t, 50*time.Millisecond, p.Rate.Std())
	assert.Equal(t, Workload{Keys: []string{"x", "y"}, Reads: 5, Writes: 3, Cas: 2}, p.Workload)
	require.NotNil(t, p.Nemesis)
	assert.Equal(t, []string{"partition", "kill"}, p.Nemesis.Faults)
	assert.Equal(t, 5*time.Second, p.Nemesis.Interval.Std())
	assert.Equal(t, 10*time.Second, p.Nemesis.Recovery.Std())
	assert.True(t, p.FinalReads)
}

func TestParse_Defaults(t *testing.T) {
	p, err := Parse("plan.yaml", []byte(`
name: minimal
nodes: [n1]
concurrency: 1
time_limit: 10s
workload:
  keys: [x]
  reads: 1
nemesis:
  faults: [clock-skew, clock-strobe]
  interval: 1s
`))
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, p.Rate.Std(), "default request rate")
	assert.Equal(t, 250*time.Millisecond, p.Nemesis.MaxOffset.Std(), "default clock offset bound")
	assert.Equal(t, 10*time.Millisecond, p.Nemesis.StrobePeriod.Std(), "default strobe period")
	assert.Zero(t, p.Nemesis.Recovery.Std())
	assert.False(t, p.FinalReads)
}

func TestParse_SchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero concurrency", `
name: bad
nodes: [n1]
concurrency: 0
time_limit: 10s
workload: {keys: [x], reads: 1}
`},
		{"unknown fault", `
name: bad
nodes: [n1]
concurrency: 1
time_limit: 10s
workload: {keys: [x], reads: 1}
nemesis: {faults: [meteor-strike], interval: 1s}
`},
		{"malformed duration", `
name: bad
nodes: [n1]
concurrency: 1
time_limit: ten seconds
workload: {keys: [x], reads: 1}
`},
		{"empty nodes", `
name: bad
nodes: []
concurrency: 1
time_limit: 10s
workload: {keys: [x], reads: 1}
`},
		{"unknown field", `
name: bad
nodes: [n1]
concurrency: 1
time_limit: 10s
parallelism: 4
workload: {keys: [x], reads: 1}
`},
		{"missing time limit", `
name: bad
nodes: [n1]
concurrency: 1
workload: {keys: [x], reads: 1}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("plan.yaml", []byte(tc.yaml))
			var planErr *PlanError
			require.ErrorAs(t, err, &planErr)
			assert.Equal(t, "plan.yaml", planErr.File)
			assert.NotEmpty(t, planErr.Problems)
		})
	}
}

func TestParse_EmptyWorkload(t *testing.T) {
	_, err := Parse("plan.yaml", []byte(`
name: idle
nodes: [n1]
concurrency: 1
time_limit: 10s
workload: {keys: [x]}
`))
	var planErr *PlanError
	require.ErrorAs(t, err, &planErr)
	assert.Contains(t, planErr.Problems[0], "workload")
}

func TestDuration_Roundtrip(t *testing.T) {
	d := Duration(90 * time.Second)
	out, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", out)
}
