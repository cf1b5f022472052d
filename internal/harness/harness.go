package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sebastiandunzer/dcr-log-filter/internal/analysis"
	"github.com/sebastiandunzer/dcr-log-filter/internal/compiler"
	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
	"github.com/sebastiandunzer/dcr-log-filter/internal/engine"
	"github.com/sebastiandunzer/dcr-log-filter/internal/testutil"
)

// Harness executes one scenario.
// It runs the real driver with a fixed run ID
// (testutil.FixedRunIDGenerator) so results are reproducible.
type Harness struct {
	scenario *Scenario
	graph    *dcr.Graph
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Compile the scenario graph from CUE
// 2. Replay the scenario log through engine.Driver into a fresh Aggregator
// 3. Compare a runtime abort against expect_error
// 4. Evaluate assertions against records and report
//
// A returned error means the scenario itself is broken (bad graph, or an
// abort nobody asked for); failed assertions only mark the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	g, err := compileScenarioGraph(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to compile graph: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		graph:    g,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	return h.run(ctx)
}

func (h *Harness) run(ctx context.Context) (*Result, error) {
	opts, err := h.driverOptions()
	if err != nil {
		return nil, err
	}

	agg := analysis.NewAggregator()
	driver := engine.NewDriver(h.graph, agg, opts...)
	log := h.scenario.EventLog()

	result := NewResult()
	summary, runErr := driver.Run(ctx, log.Traces)

	if runErr != nil {
		var re *engine.RuntimeError
		if !errors.As(runErr, &re) || string(re.Code) != h.scenario.ExpectError {
			return nil, fmt.Errorf("run failed: %w", runErr)
		}
		h.logger.Debug("run aborted as expected", "scenario", h.scenario.Name, "code", re.Code)
		result.RunError = string(re.Code)
		return result, nil
	}
	if h.scenario.ExpectError != "" {
		result.AddError(fmt.Sprintf("expected run to abort with %s, but it completed", h.scenario.ExpectError))
	}

	result.Summary = summary
	result.Records = agg.Records()
	result.Report = agg.Summarize()

	for _, msg := range EvaluateAssertions(result, h.scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Debug("scenario finished",
		"scenario", h.scenario.Name,
		"pass", result.Pass,
		"traces", summary.Traces,
		"violating", summary.Violating,
	)
	return result, nil
}

func (h *Harness) driverOptions() ([]engine.DriverOption, error) {
	s := h.scenario

	policy := engine.FailFast
	if s.Policy != "" {
		p, err := engine.ParsePolicy(s.Policy)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	mode := engine.Sequential
	if s.Mode != "" {
		m, err := engine.ParseMode(s.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	opts := []engine.DriverOption{
		engine.WithPolicy(policy),
		engine.WithMode(mode),
		engine.WithWorkers(s.Workers),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(s.RunID)),
	}
	if s.Strict {
		opts = append(opts, engine.WithStrictActivities())
	}
	return opts, nil
}

// compileScenarioGraph loads the scenario's CUE source and builds the
// selected graph.
func compileScenarioGraph(s *Scenario) (*dcr.Graph, error) {
	var (
		result *compiler.LoadResult
		errs   []error
	)
	if s.GraphFile != "" {
		result, errs = compiler.LoadGraphs(s.GraphFile, compiler.LoadModeFailFast)
	} else {
		result, errs = compiler.LoadGraphSource(s.Name+".cue", []byte(s.Graph), compiler.LoadModeFailFast)
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}

	def, err := selectGraph(result, s.GraphName)
	if err != nil {
		return nil, err
	}
	return dcr.New(def)
}

func selectGraph(result *compiler.LoadResult, name string) (dcr.Definition, error) {
	if name == "" {
		if len(result.Graphs) != 1 {
			return dcr.Definition{}, fmt.Errorf("graph_name is required: source declares %v", result.Names())
		}
		return result.Graphs[0], nil
	}
	def, ok := result.Lookup(name)
	if !ok {
		return dcr.Definition{}, fmt.Errorf("graph %q not found (have %v)", name, result.Names())
	}
	return def, nil
}
