package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes running every scenario in a directory.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Scenario     string `json:"scenario,omitempty"`
	Error        string `json:"error"`
}

// FindScenarios returns the .yaml and .yml files directly under dir,
// sorted by path. path may also name a single scenario file.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario under path.
//
// For each scenario file:
// 1. Load the scenario (graph_file resolved relative to the file)
// 2. Run it via RunContext
// 3. Collect pass/fail
//
// A scenario that cannot be loaded or run counts as failed; RunSuite only
// returns an error when path itself cannot be read.
func RunSuite(ctx context.Context, path string) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, fmt.Errorf("find scenarios: %w", err)
	}

	result := &SuiteResult{}
	for _, file := range files {
		result.TotalScenarios++

		scenario, err := LoadScenario(file)
		if err != nil {
			result.fail(file, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := RunContext(ctx, scenario)
		if err != nil {
			result.fail(file, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			result.fail(file, scenario.Name, fmt.Sprintf("scenario assertions failed: %v", runResult.Errors))
			continue
		}

		result.Passed++
	}

	return result, nil
}

func (r *SuiteResult) fail(path, name, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{
		ScenarioPath: path,
		Scenario:     name,
		Error:        msg,
	})
}
