package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlan = `
name: cli-smoke
nodes: [n1, n2]
concurrency: 2
seed: 9
time_limit: 30ms
rate: 2ms
workload:
  keys: [x]
  reads: 1
  writes: 1
final_reads: true
`

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the CLI with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate_ValidPlan(t *testing.T) {
	path := writePlan(t, testPlan)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "plan is valid")
}

func TestValidate_InvalidPlan(t *testing.T) {
	path := writePlan(t, `
name: bad
nodes: [n1]
concurrency: 0
time_limit: 10s
workload: {keys: [x], reads: 1}
`)

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "invalid")
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate_JSONOutput(t *testing.T) {
	path := writePlan(t, testPlan)

	out, err := execute(t, "validate", path, "--format", "json")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRoot_RejectsBadFormat(t *testing.T) {
	path := writePlan(t, testPlan)

	_, err := execute(t, "validate", path, "--format", "yaml")
	assert.Error(t, err)
}

func TestRun_MemDriverAndHistory(t *testing.T) {
	planPath := writePlan(t, testPlan)
	storePath := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "run", planPath, "--store", storePath, "--format", "json")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	runID := data["run_id"].(string)
	require.NotEmpty(t, runID)
	assert.Equal(t, true, data["valid"])
	assert.Greater(t, data["ops"].(float64), 0.0)

	out, err = execute(t, "history", "list", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "cli-smoke")

	out, err = execute(t, "history", "show", runID, "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, `"type":"invoke"`)
	assert.Contains(t, out, `"f":"read"`)
}

func TestRun_UnknownDriver(t *testing.T) {
	path := writePlan(t, testPlan)

	_, err := execute(t, "run", path, "--driver", "etcd")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistory_ShowUnknownRun(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "runs.db")

	_, err := execute(t, "history", "show", "no-such-run", "--store", storePath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
