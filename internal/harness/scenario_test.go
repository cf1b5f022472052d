package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyGraph = `graph: g: {
	activity: A: response: ["B"]
	activity: B: {}
}
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "loan_roles.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "loan_roles", scenario.Name)
	assert.Equal(t, "fail-fast", scenario.Policy)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "..", "graphs", "loan.cue"), scenario.GraphFile)
	require.Len(t, scenario.Traces, 3)
	assert.Equal(t, EventSpec{Activity: "Review", Role: "Customer"}, scenario.Traces[1].Events[1])
	assert.Equal(t, EventSpec{Activity: "Approve"}, scenario.Traces[2].Events[0], "scalar shorthand")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "typo.yaml", `
name: typo
description: misspelled field
graph: "graph: g: activity: A: {}"
traces: []
assertion:
  - type: violation_count
    count: 0
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\ngraph: x\nassertions: [{type: violation_count}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\ngraph: x\nassertions: [{type: violation_count}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no graph",
			content: "name: n\ndescription: d\nassertions: [{type: violation_count}]\n",
			wantErr: "one of graph or graph_file is required",
		},
		{
			name:    "both graphs",
			content: "name: n\ndescription: d\ngraph: x\ngraph_file: y.cue\nassertions: [{type: violation_count}]\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "graph file missing",
			content: "name: n\ndescription: d\ngraph_file: missing.cue\nassertions: [{type: violation_count}]\n",
			wantErr: "graph file not found",
		},
		{
			name:    "bad policy",
			content: "name: n\ndescription: d\ngraph: x\npolicy: lenient\nassertions: [{type: violation_count}]\n",
			wantErr: "unknown policy",
		},
		{
			name:    "bad mode",
			content: "name: n\ndescription: d\ngraph: x\nmode: turbo\nassertions: [{type: violation_count}]\n",
			wantErr: "unknown mode",
		},
		{
			name:    "no assertions",
			content: "name: n\ndescription: d\ngraph: x\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "empty activity",
			content: "name: n\ndescription: d\ngraph: x\ntraces: [{events: ['']}]\nassertions: [{type: violation_count}]\n",
			wantErr: "traces[0].events[0]: activity is required",
		},
		{
			name:    "verdict without trace",
			content: "name: n\ndescription: d\ngraph: x\nassertions: [{type: verdict, violated: true}]\n",
			wantErr: "trace is required for verdict",
		},
		{
			name:    "verdict without violated",
			content: "name: n\ndescription: d\ngraph: x\nassertions: [{type: verdict, trace: t}]\n",
			wantErr: "violated is required for verdict",
		},
		{
			name:    "violation without kind",
			content: "name: n\ndescription: d\ngraph: x\nassertions: [{type: violation, trace: t}]\n",
			wantErr: "kind is required for violation",
		},
		{
			name:    "order without kinds",
			content: "name: n\ndescription: d\ngraph: x\nassertions: [{type: violation_order, trace: t}]\n",
			wantErr: "kinds list is required",
		},
		{
			name:    "negative count",
			content: "name: n\ndescription: d\ngraph: x\nassertions: [{type: violation_count, count: -1}]\n",
			wantErr: "count must be non-negative",
		},
		{
			name:    "report without expect",
			content: "name: n\ndescription: d\ngraph: x\nassertions: [{type: report}]\n",
			wantErr: "expect is required for report",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\ngraph: x\nassertions: [{type: final_state}]\n",
			wantErr: `unknown assertion type "final_state"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), "s.yaml", tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_ExpectErrorNeedsNoAssertions(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "strict_unknown_activity.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN_ACTIVITY", scenario.ExpectError)
	assert.Empty(t, scenario.Assertions)
}

func TestScenarioEventLog(t *testing.T) {
	s := &Scenario{
		Name: "log",
		Traces: []TraceSpec{
			{ID: "a", Events: []EventSpec{{Activity: "A", Role: "R"}}},
			{Events: []EventSpec{{Activity: "B"}}},
		},
	}

	log := s.EventLog()
	assert.Equal(t, "log", log.Name)
	require.Len(t, log.Traces, 2)
	assert.Equal(t, "a", log.Traces[0].ID)
	assert.Equal(t, "R", log.Traces[0].Events[0].Role)
	assert.Equal(t, "2", log.Traces[1].ID, "missing IDs fall back to the 1-based position")
}
