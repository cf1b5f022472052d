package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/sebastiandunzer/dcr-log-filter/internal/analysis"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// Snapshot captures the deterministic outcome of a scenario execution.
// Run IDs and durations are left out: they are not part of the verdict.
type Snapshot struct {
	ScenarioName string               `json:"scenario_name"`
	Policy       string               `json:"policy"`
	Records      []ir.ViolationRecord `json:"records"`
	Report       analysis.Report      `json:"report"`
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles primitives, slices and maps.
func (s *Snapshot) toCanonicalMap() map[string]any {
	records := make([]any, len(s.Records))
	for i, rec := range s.Records {
		recMap := map[string]any{
			"trace_id": rec.TraceID,
			"path":     stringsOrEmpty(rec.Path),
			"violated": rec.Violated,
		}
		if len(rec.Violations) > 0 {
			vs := make([]any, len(rec.Violations))
			for j, v := range rec.Violations {
				vMap := map[string]any{
					"kind":     string(v.Kind),
					"activity": v.Activity,
					"position": v.Position,
				}
				if v.Role != "" {
					vMap["role"] = v.Role
				}
				if v.Relation != "" {
					vMap["relation"] = v.Relation
				}
				if v.Related != "" {
					vMap["related"] = v.Related
				}
				vs[j] = vMap
			}
			recMap["violations"] = vs
		}
		records[i] = recMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"policy":        s.Policy,
		"records":       records,
		"report":        s.Report.Canonical(),
	}
}

// MarshalSnapshot renders a result as canonical JSON.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	policy := result.Summary.Policy
	if len(result.Records) > 0 {
		policy = result.Records[0].Policy
	}
	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Policy:       policy,
		Records:      result.Records,
		Report:       result.Report,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares records and report
// against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
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

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
