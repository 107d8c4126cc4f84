package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sigsync/internal/ir"
)

// TraceSnapshot is the golden form of a run: the per-step trace and the final
// entries, serialized as canonical JSON.
type TraceSnapshot struct {
	ScenarioName string             `json:"scenario_name"`
	Trace        []TraceEvent       `json:"trace"`
	Entries      []ir.EntrySnapshot `json:"entries"`
}

// Canonical returns the canonical JSON of a result.
func (r *Result) Canonical(name string) ([]byte, error) {
	return ir.MarshalCanonical(TraceSnapshot{
		ScenarioName: name,
		Trace:        r.Trace,
		Entries:      r.Entries(),
	})
}

// RunWithGolden executes a scenario and compares its trace and final entries
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := result.Canonical(scenarioName)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
