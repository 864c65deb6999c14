package schemas_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

func TestTally(t *testing.T) {
	report := &schemas.SuiteReport{
		Results: []schemas.ScenarioResult{
			{ID: "a", Status: schemas.StatusPassed, Attempts: 1},
			{ID: "b", Status: schemas.StatusPassed, Attempts: 2},
			{ID: "c", Status: schemas.StatusFailed, Attempts: 2},
			{ID: "d", Status: schemas.StatusSkipped},
		},
	}
	report.Tally()

	assert.Equal(t, schemas.Stats{Total: 4, Passed: 2, Failed: 1, Skipped: 1, Flaky: 1}, report.Stats)
	assert.False(t, report.Passed())
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "c", report.Failed()[0].ID)
}

func TestSkippedInstancesFailTheRun(t *testing.T) {
	report := &schemas.SuiteReport{
		Results: []schemas.ScenarioResult{
			{ID: "a", Status: schemas.StatusPassed, Attempts: 1},
			{ID: "b", Status: schemas.StatusSkipped},
			{ID: "c", Status: schemas.StatusSkipped},
		},
	}
	report.Tally()

	assert.Zero(t, report.Stats.Failed)
	assert.False(t, report.Passed(), "1 of 3 instances passed")
	assert.Empty(t, report.Failed())
}

func TestPassedWithNoResults(t *testing.T) {
	report := &schemas.SuiteReport{}
	report.Tally()
	assert.True(t, report.Passed())
	assert.Empty(t, report.Failed())
}

func TestJSONFieldNames(t *testing.T) {
	ts := time.Date(2025, 10, 26, 10, 0, 0, 0, time.UTC)
	report := schemas.SuiteReport{
		RunID:     "run-1",
		StartedAt: ts,
		Results: []schemas.ScenarioResult{{
			ID:     "login-1",
			Title:  "Invalid login",
			Status: schemas.StatusFailed,
			Failure: &schemas.Failure{
				Message:   "text mismatch",
				ErrorType: "AssertionFailure",
				StepIndex: 3,
				StepKind:  "assert",
				Target:    ".error",
				Expected:  "could not be verified",
				Actual:    "",
			},
			Artifacts: []schemas.ArtifactRef{{Kind: schemas.ArtifactScreenshot, Path: "a.png", ContentType: "image/png"}},
		}},
	}

	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "run-1", generic["runId"])
	assert.Equal(t, "2025-10-26T10:00:00Z", generic["startedAt"])
	assert.NotContains(t, generic, "revision")

	results := generic["results"].([]interface{})
	first := results[0].(map[string]interface{})
	assert.Equal(t, "failed", first["status"])
	failure := first["failure"].(map[string]interface{})
	assert.Equal(t, "AssertionFailure", failure["errorType"])
	assert.EqualValues(t, 3, failure["stepIndex"])
	artifact := first["artifacts"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "screenshot", artifact["kind"])
}

func TestNewHAR(t *testing.T) {
	har := schemas.NewHAR("1.0.0")
	assert.Equal(t, "1.2", har.Log.Version)
	assert.Equal(t, "flowcheck", har.Log.Creator.Name)
	assert.Equal(t, "1.0.0", har.Log.Creator.Version)
	assert.NotNil(t, har.Log.Entries)

	raw, err := json.Marshal(har)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"entries":[]`)
}
