package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommandPasses(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ regions")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err, out)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Total)
	assert.Equal(t, 4, resp.Data.Passed)
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios", "--filter", "nothing*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommandUpdate(t *testing.T) {
	golden := t.TempDir()
	out, err := execute(t, "test", "testdata/scenarios", "--update", "--golden", golden)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ regions (golden updated)")

	written, err := os.ReadFile(filepath.Join(golden, "regions.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("testdata", "golden", "regions.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(golden, "regions.golden"), []byte("scenario: regions\n"), 0o644))

	out, err := execute(t, "test", "testdata/scenarios", "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ regions")
	assert.Contains(t, out, "golden file mismatch")
}

func TestTestCommandFailedAssertion(t *testing.T) {
	dir := t.TempDir()
	specs, err := filepath.Abs(filepath.Join("testdata", "assets"))
	require.NoError(t, err)
	scenario := `name: wrong_count
description: Expects more records than the run writes
specs: ` + specs + `
as_of: "2024-01-10"
runs:
  - assets: [regions]
    partition: us
assertions:
  - type: record_count
    asset: regions
    count: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_count.yaml"), []byte(scenario), 0o644))

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "assertions[0]")
}

func TestTestCommandBadScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\nbogus: true\n"), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "load error")
}

func TestTestCommandMissingDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}
