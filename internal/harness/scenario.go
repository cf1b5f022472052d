package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sebastiandunzer/dcr-log-filter/internal/engine"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// DefaultRunID is the run ID used when a scenario does not set one.
const DefaultRunID = "test-run-default"

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is inline CUE source declaring one or more graphs.
	// Exactly one of Graph and GraphFile must be set.
	Graph string `yaml:"graph,omitempty"`

	// GraphFile is a path to a .cue file, relative to the scenario file.
	GraphFile string `yaml:"graph_file,omitempty"`

	// GraphName selects a graph when the source declares several.
	GraphName string `yaml:"graph_name,omitempty"`

	// Policy is "fail-fast" (default) or "exhaustive".
	Policy string `yaml:"policy,omitempty"`

	// Mode is "sequential" (default), "parallel" or "unbounded".
	Mode string `yaml:"mode,omitempty"`

	// Workers bounds the pool in parallel mode. Zero means GOMAXPROCS.
	Workers int `yaml:"workers,omitempty"`

	// Strict aborts the run on undeclared activities.
	Strict bool `yaml:"strict,omitempty"`

	// ExpectError is the runtime error code the run must abort with
	// (e.g. UNKNOWN_ACTIVITY). Assertions are skipped when it is set.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Traces is the event log to replay. Traces without an ID get their
	// 1-based position.
	Traces []TraceSpec `yaml:"traces"`

	// Assertions validate the records and the report.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID is an optional fixed run ID. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`
}

// TraceSpec is one trace of the scenario log.
type TraceSpec struct {
	ID     string      `yaml:"id,omitempty"`
	Events []EventSpec `yaml:"events"`
}

// EventSpec is one event. A plain string is shorthand for an event with
// no role:
//
//	events: [Submit, {activity: Review, role: Clerk}]
type EventSpec struct {
	Activity string `yaml:"activity"`
	Role     string `yaml:"role,omitempty"`
}

// UnmarshalYAML accepts both the scalar shorthand and the mapping form.
func (e *EventSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		e.Activity = value.Value
		e.Role = ""
		return nil
	}
	type plain EventSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = EventSpec(p)
	return nil
}

// Assertion validates records or the report.
type Assertion struct {
	// Type specifies the assertion type:
	// - "verdict": Trace is violating iff Violated
	// - "violation": Trace carries a violation matching the given fields
	// - "violation_order": Trace's violation kinds appear in Kinds order
	// - "violation_count": exactly Count violations (per Trace/Kind if set)
	// - "report": subset match of Expect on the canonical report
	Type string `yaml:"type"`

	// Trace is the trace ID (verdict, violation, violation_order,
	// optionally violation_count).
	Trace string `yaml:"trace,omitempty"`

	// Violated is the expected verdict (verdict).
	Violated *bool `yaml:"violated,omitempty"`

	// Kind is the violation kind (violation, optionally violation_count).
	Kind string `yaml:"kind,omitempty"`

	// Activity, Related and Position narrow a violation match.
	Activity string `yaml:"activity,omitempty"`
	Related  string `yaml:"related,omitempty"`
	Position *int   `yaml:"position,omitempty"`

	// Kinds is the expected kind order (violation_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of violations (violation_count).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected report fields (report).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertVerdict        = "verdict"
	AssertViolation      = "violation"
	AssertViolationOrder = "violation_order"
	AssertViolationCount = "violation_count"
	AssertReport         = "report"
)

// LoadScenario reads and parses a scenario YAML file.
// GraphFile is resolved relative to the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving GraphFile relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve graph path relative to base path BEFORE validation
	if scenario.GraphFile != "" && !filepath.IsAbs(scenario.GraphFile) && basePath != "" {
		scenario.GraphFile = filepath.Join(basePath, scenario.GraphFile)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML without touching the filesystem.
// Unknown fields are rejected. The result is not validated.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// EventLog converts the scenario traces into an event log.
func (s *Scenario) EventLog() ir.EventLog {
	log := ir.EventLog{Name: s.Name, Traces: make([]ir.Trace, len(s.Traces))}
	for i, ts := range s.Traces {
		tr := ir.Trace{ID: ts.ID, Events: make([]ir.Event, len(ts.Events))}
		for j, ev := range ts.Events {
			tr.Events[j] = ir.Event{Activity: ev.Activity, Role: ev.Role}
		}
		log.Traces[i] = tr
	}
	ir.AssignMissingIDs(log.Traces)
	return log
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Graph == "" && s.GraphFile == "":
		return fmt.Errorf("one of graph or graph_file is required")
	case s.Graph != "" && s.GraphFile != "":
		return fmt.Errorf("graph and graph_file are mutually exclusive")
	}

	if s.GraphFile != "" {
		if _, err := os.Stat(s.GraphFile); os.IsNotExist(err) {
			return fmt.Errorf("graph file not found: %s", s.GraphFile)
		}
	}

	if s.Policy != "" {
		if _, err := engine.ParsePolicy(s.Policy); err != nil {
			return err
		}
	}
	if s.Mode != "" {
		if _, err := engine.ParseMode(s.Mode); err != nil {
			return err
		}
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	for i, tr := range s.Traces {
		for j, ev := range tr.Events {
			if ev.Activity == "" {
				return fmt.Errorf("traces[%d].events[%d]: activity is required", i, j)
			}
		}
	}

	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertVerdict:
		if a.Trace == "" {
			return fmt.Errorf("assertions[%d]: trace is required for verdict", index)
		}
		if a.Violated == nil {
			return fmt.Errorf("assertions[%d]: violated is required for verdict", index)
		}
	case AssertViolation:
		if a.Trace == "" {
			return fmt.Errorf("assertions[%d]: trace is required for violation", index)
		}
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for violation", index)
		}
	case AssertViolationOrder:
		if a.Trace == "" {
			return fmt.Errorf("assertions[%d]: trace is required for violation_order", index)
		}
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for violation_order", index)
		}
	case AssertViolationCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for violation_count", index)
		}
	case AssertReport:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for report", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
