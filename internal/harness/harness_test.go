package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigsync/internal/ir"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.Len(t, paths, 3)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/todo_list.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_StepExpectationsFail(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_expectations
description: "Expectations that do not hold"
steps:
  - id: e1
    command: {entry: $root, direction: AFTER, value: 1}
    expect_drop: missing_list
  - id: e2
    command: {set: e1, value: 2}
    expect_error: UNKNOWN_COMMAND
  - wire: '{"set": 1}'
assertions:
  - type: entry_count
    count: 2
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "step 1: expected drop missing_list, got applied")
	assert.Contains(t, result.Errors[1], "step 2: expected error UNKNOWN_COMMAND, got applied")
	assert.Contains(t, result.Errors[2], "step 3: unexpected rejected (MALFORMED_EVENT)")
}

func TestRun_AssertionsFail(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_assertions
description: "Assertions that do not hold"
steps:
  - id: e1
    command: {entry: $root, direction: AFTER, value: "a"}
assertions:
  - type: entry_value
    entry: e1
    value: "b"
  - type: entry_missing
    entry: e1
  - type: list_order
    order: [e2]
  - type: entry_count
    count: 5
  - type: root_value
    value: 3
  - type: drop_count
    reason: not_a_list
    count: 1
  - type: list_order
    list: e1
    order: []
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)
	assert.Contains(t, result.Errors[0], "Expected: entry e1 = \"b\"")
	assert.Contains(t, result.Errors[1], "entry with value \"a\"")
	assert.Contains(t, result.Errors[2], "Actual: [e1]")
	assert.Contains(t, result.Errors[3], "Actual: 2 entries")
	assert.Contains(t, result.Errors[4], "Assertion failed: root_value")
	assert.Contains(t, result.Errors[5], "Actual: 0")
	assert.Contains(t, result.Errors[6], "not a list")
}

func TestRun_ResumeSkippedAfterEviction(t *testing.T) {
	scenario := mustParse(t, `
name: small_history
description: "History smaller than the run"
capacity: 2
steps:
  - id: e1
    command: {entry: $root, direction: AFTER, value: 1}
  - id: e2
    command: {entry: $root, direction: AFTER, value: 2}
  - id: e3
    command: {entry: $root, direction: AFTER, value: 3}
assertions:
  - type: list_order
    order: [e1, e2, e3]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ValueModeNullInitial(t *testing.T) {
	scenario := mustParse(t, `
name: list_default
description: "A null initial value starts a list"
initial: null
steps:
  - id: e1
    command: {entry: $root, direction: BEFORE, value: "x"}
assertions:
  - type: list_order
    order: [e1]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestResult_Canonical(t *testing.T) {
	r := NewResult()
	r.Trace = append(r.Trace, TraceEvent{Step: 1, EventID: "e1", Kind: "set", Seq: 1, Outcome: OutcomeApplied})
	r.Snapshot = ir.Event{Command: ir.Command{Snapshot: &ir.Snapshot{Entries: []ir.EntrySnapshot{
		{ID: ir.RootID, Value: ir.MustValue(1)},
	}}}}

	data, err := r.Canonical("x")
	require.NoError(t, err)
	assert.Equal(t,
		`{"entries":[{"id":"`+ir.RootID+`","next":null,"prev":null,"value":1}],"scenario_name":"x",`+
			`"trace":[{"event_id":"e1","kind":"set","outcome":"applied","seq":1,"step":1}]}`,
		string(data))
}

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}
