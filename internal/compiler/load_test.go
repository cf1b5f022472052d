package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGraphsFile(t *testing.T) {
	result, errs := LoadGraphs(filepath.Join("testdata", "loan.cue"), LoadModeFailFast)
	require.Empty(t, errs)

	assert.Equal(t, 1, result.FileCount)
	assert.Equal(t, []string{"loan"}, result.Names())

	def, ok := result.Lookup("loan")
	require.True(t, ok)
	assert.Len(t, def.Activities, 4)

	_, ok = result.Lookup("missing")
	assert.False(t, ok)
}

func TestLoadGraphsDirectory(t *testing.T) {
	result, errs := LoadGraphs(filepath.Join("testdata", "multi"), LoadModeFailFast)
	require.Empty(t, errs)

	assert.Equal(t, 2, result.FileCount)
	assert.Equal(t, []string{"claims", "orders"}, result.Names(), "graphs sorted by name")
}

func TestLoadGraphsNotFound(t *testing.T) {
	_, errs := LoadGraphs(filepath.Join("testdata", "nope.cue"), LoadModeFailFast)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestLoadGraphsEmptyDirectory(t *testing.T) {
	_, errs := LoadGraphs(t.TempDir(), LoadModeFailFast)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)
}

func TestLoadGraphsSyntaxError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(path, []byte("graph: { activity: "), 0o644))

	_, errs := LoadGraphs(path, LoadModeFailFast)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeBuildFailed, le.Code)
}

func TestLoadGraphsNoGraphs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.cue")
	require.NoError(t, os.WriteFile(path, []byte(`concept: x: 1`), 0o644))

	_, errs := LoadGraphs(path, LoadModeFailFast)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeNoGraphs, le.Code)
}

func TestLoadGraphsCompileErrors(t *testing.T) {
	dir := filepath.Join("testdata", "broken")

	result, errs := LoadGraphs(dir, LoadModeFailFast)
	assert.Len(t, errs, 1, "fail-fast stops at the first bad graph")
	assert.NotNil(t, result)

	result, errs = LoadGraphs(dir, LoadModeCollectAll)
	assert.Len(t, errs, 2)
	assert.Equal(t, []string{"ok"}, result.Names())

	for _, err := range errs {
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, ErrCodeGeneric, le.Code)
	}
	assert.Contains(t, errs[1].Error(), "graph.worse")
}

func TestLoadGraphSource(t *testing.T) {
	src := []byte(`
graph: tiny: {
	activity: A: response: ["B"]
	activity: B: {}
}
`)
	result, errs := LoadGraphSource("inline.cue", src, LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, []string{"tiny"}, result.Names())

	_, errs = LoadGraphSource("inline.cue", []byte("graph: {"), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeBuildFailed)
}

func TestFindCUEFiles(t *testing.T) {
	files, err := FindCUEFiles(filepath.Join("testdata", "multi"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
