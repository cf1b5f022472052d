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

func TestValidateValidGraph(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("testdata", "loan.cue")})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ All graphs valid (1 graph(s))")
	assert.NotContains(t, output, "warning")
}

func TestValidateValidGraphJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("testdata", "loan.cue")})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"loan"}, resp.Data.Graphs)
}

func TestValidateDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("..", "compiler", "testdata", "multi")})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ All graphs valid (2 graph(s))")
}

func TestValidateCycleWarning(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("testdata", "cyclic.cue")})

	// Cycles are warnings: the graph still validates
	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ All graphs valid")
	assert.Contains(t, output, "warning: Condition cycle detected: A waits for B waits for A")
}

func TestValidateUndeclaredActivity(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("testdata", "undeclared.cue")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed")

	output := buf.String()
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, "E205")
	assert.Contains(t, output, "Ghost")
}

func TestValidateUndeclaredActivityJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("testdata", "undeclared.cue")})

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E205", resp.Error.Code)
}

func TestValidateCompileErrorsAreCollected(t *testing.T) {
	tmpDir := t.TempDir()

	src := `
package graphs

graph: good: {
	activity: A: {}
}

graph: typo: {
	activity: A: respnse: ["B"]
}

graph: other: {
	activity: X: colour: "red"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "graphs.cue"), []byte(src), 0644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")

	output := buf.String()
	assert.Contains(t, output, "respnse")
	assert.Contains(t, output, "colour")
}

func TestValidateVerboseOutput(t *testing.T) {
	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Verbose: true}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(stdoutBuf)
	cmd.SetErr(stderrBuf) // Verbose output goes to stderr
	cmd.SetArgs([]string{filepath.Join("testdata", "loan.cue")})

	err := cmd.Execute()
	require.NoError(t, err)

	verboseOutput := stderrBuf.String()
	assert.Contains(t, verboseOutput, "CUE file(s)")
	assert.Contains(t, verboseOutput, "Validating graph: loan")
	assert.NotContains(t, stdoutBuf.String(), "Validating graph")
}

func TestValidateNonExistentPath(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005") // ErrCodeNotFound
	assert.Contains(t, buf.String(), "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E003")
	assert.Contains(t, buf.String(), "no CUE files found")
}

func TestValidateGraphs(t *testing.T) {
	result, errs, err := ValidateGraphs(filepath.Join("testdata", "undeclared.cue"))
	require.NoError(t, err)
	assert.Equal(t, []string{"dangling"}, result.Names())
	require.Len(t, errs, 1)
	assert.Equal(t, "E205", errs[0].Code)
}

func TestValidateGraphsNonExistent(t *testing.T) {
	_, _, err := ValidateGraphs("/nonexistent/directory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
