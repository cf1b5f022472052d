package eventlog

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

func TestLoadYAML(t *testing.T) {
	log, err := Load(filepath.Join("testdata", "loan.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "loan-log", log.Name)
	require.Len(t, log.Traces, 3)

	first := log.Traces[0]
	assert.Equal(t, "case-1", first.ID)
	assert.Equal(t, []string{"Submit", "Review", "Approve"}, first.Path())
	require.NotNil(t, first.Events[0].Timestamp)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), first.Events[0].Timestamp.UTC())
	assert.Nil(t, first.Events[2].Timestamp)

	second := log.Traces[1]
	assert.Equal(t, "Customer", second.Events[0].Role, "role falls back to resource")
	assert.Equal(t, map[string]string{"amount": "1200"}, second.Events[0].Attributes)

	assert.Equal(t, "3", log.Traces[2].ID, "missing id falls back to position")
}

func TestLoadJSON(t *testing.T) {
	log, err := Load(filepath.Join("testdata", "loan.json"))
	require.NoError(t, err)

	require.Len(t, log.Traces, 2)
	assert.Equal(t, "case-1", log.Traces[0].ID)
	assert.Equal(t, "2", log.Traces[1].ID)
	assert.Equal(t, "Clerk", log.Traces[1].Events[0].Role)
}

func TestMissingIDDoesNotCollide(t *testing.T) {
	src := `
traces:
  - id: "2"
    events: [{activity: A}]
  - events: [{activity: B}]
  - id: "2.2"
    events: [{activity: C}]
  - events: [{activity: D}]
`
	log, err := Decode(strings.NewReader(src), FormatYAML)
	require.NoError(t, err)

	ids := make([]string, 0, len(log.Traces))
	for _, tr := range log.Traces {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"2", "2.3", "2.2", "4"}, ids)

	res := Filter(log, []string{"2"})
	assert.Equal(t, 1, res.Removed, "the anonymous second trace survives")
	require.Len(t, res.Log.Traces, 3)
	assert.Equal(t, "B", res.Log.Traces[0].Events[0].Activity)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read event log")
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("traces:\n  - id: a\n    evnts: []\n"), FormatYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")

	_, err = Decode(strings.NewReader(`{"traces": [], "extra": 1}`), FormatJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse JSON")
}

func TestDecodeInvalidContent(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{
			name:  "missing activity",
			src:   "traces:\n  - events:\n      - {role: Clerk}\n",
			field: "activity",
			msg:   "trace 1 event 1: activity",
		},
		{
			name:  "bad timestamp",
			src:   "traces:\n  - events:\n      - {activity: A}\n      - {activity: B, timestamp: \"yesterday\"}\n",
			field: "timestamp",
			msg:   "trace 1 event 2: timestamp",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src), FormatYAML)
			require.Error(t, err)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.field, de.Field)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestDecodeEmptyDocument(t *testing.T) {
	log, err := Decode(strings.NewReader(""), FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, log.Traces)
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	_, err := Decode(strings.NewReader(""), Format("xes"))
	assert.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	log, err := Load(filepath.Join("testdata", "loan.yaml"))
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, log, format))

			again, err := Decode(&buf, format)
			require.NoError(t, err)
			require.Len(t, again.Traces, len(log.Traces))
			for i := range log.Traces {
				assert.Equal(t, log.Traces[i].ID, again.Traces[i].ID)
				assert.Equal(t, log.Traces[i].Path(), again.Traces[i].Path())
			}
			assert.True(t, log.Traces[0].Events[1].Timestamp.Equal(*again.Traces[0].Events[1].Timestamp))
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	log := ir.EventLog{Name: "x", Traces: []ir.Trace{{ID: "a", Events: []ir.Event{{Activity: "A", Role: "R"}}}}}

	require.NoError(t, Save(path, log))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, log, got)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor("log.JSON"))
	assert.Equal(t, FormatYAML, FormatFor("log.yaml"))
	assert.Equal(t, FormatYAML, FormatFor("log.yml"))
	assert.Equal(t, FormatYAML, FormatFor("log"))
}

func TestFilter(t *testing.T) {
	log := ir.EventLog{Name: "l", Traces: []ir.Trace{
		{ID: "a", Events: []ir.Event{{Activity: "A"}}},
		{ID: "b", Events: []ir.Event{{Activity: "B"}}},
		{ID: "a", Events: []ir.Event{{Activity: "C"}}},
		{ID: "c"},
	}}

	res := Filter(log, []string{"a", "missing"})
	assert.Equal(t, 2, res.Removed)
	require.Len(t, res.Log.Traces, 2)
	assert.Equal(t, "b", res.Log.Traces[0].ID)
	assert.Equal(t, "c", res.Log.Traces[1].ID)
	assert.Equal(t, "l", res.Log.Name)

	res.Log.Traces[0].Events[0].Activity = "mutated"
	assert.Equal(t, "B", log.Traces[1].Events[0].Activity, "original log untouched")
	assert.Len(t, log.Traces, 4)
}

func TestFilterNothing(t *testing.T) {
	log := ir.EventLog{Traces: []ir.Trace{{ID: "a"}}}
	res := Filter(log, nil)
	assert.Zero(t, res.Removed)
	assert.Len(t, res.Log.Traces, 1)
}
