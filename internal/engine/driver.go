package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// Mode selects how traces are scheduled onto goroutines.
type Mode int

const (
	// Sequential replays traces one at a time in log order.
	Sequential Mode = iota

	// Parallel replays traces on a bounded worker pool.
	Parallel

	// Unbounded starts one goroutine per trace. Kept to compare against the
	// bounded pool on small logs; prefer Parallel.
	Unbounded
)

// String returns the flag spelling of the mode.
func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	case Unbounded:
		return "unbounded"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "seq":
		return Sequential, nil
	case "parallel":
		return Parallel, nil
	case "unbounded":
		return Unbounded, nil
	default:
		return Sequential, fmt.Errorf("unknown mode %q (want sequential, parallel or unbounded)", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Sink receives finished violation records.
// analysis.Aggregator is the production implementation.
type Sink interface {
	Append(rec ir.ViolationRecord)
}

// RunSummary describes a finished run. Verdict details live in the sink.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Graph     string        `json:"graph"`
	GraphHash string        `json:"graph_hash"`
	Policy    string        `json:"policy"`
	Mode      string        `json:"mode"`
	Workers   int           `json:"workers"`
	Traces    int           `json:"traces"`
	Violating int           `json:"violating"`
	Duration  time.Duration `json:"duration"`
}

// Driver replays a whole log against one graph and feeds every record into
// a sink.
//
// Thread-safety model:
//   - The graph is shared read-only by all workers
//   - Every trace gets its own marking inside Checker.Check
//   - Records travel over a channel to a single collector goroutine, the
//     only caller of Sink.Append during a run
//   - Run returns after every worker and the collector have finished
type Driver struct {
	graph   *dcr.Graph
	sink    Sink
	policy  Policy
	mode    Mode
	workers int
	strict  bool
	runIDs  RunIDGenerator
}

// DriverOption allows configuration of driver parameters.
type DriverOption func(*Driver)

// WithPolicy sets the replay policy. Default: FailFast.
func WithPolicy(p Policy) DriverOption {
	return func(d *Driver) {
		d.policy = p
	}
}

// WithMode sets the scheduling mode. Default: Parallel.
func WithMode(m Mode) DriverOption {
	return func(d *Driver) {
		d.mode = m
	}
}

// WithWorkers sets the pool size for Parallel mode.
// Values below 1 select runtime.GOMAXPROCS(0).
func WithWorkers(n int) DriverOption {
	return func(d *Driver) {
		d.workers = n
	}
}

// WithStrictActivities aborts the run on the first event naming an
// undeclared activity instead of recording an unknown_activity violation.
func WithStrictActivities() DriverOption {
	return func(d *Driver) {
		d.strict = true
	}
}

// WithRunIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithRunIDGenerator(gen RunIDGenerator) DriverOption {
	return func(d *Driver) {
		d.runIDs = gen
	}
}

// NewDriver creates a Driver that replays against g and appends to sink.
func NewDriver(g *dcr.Graph, sink Sink, opts ...DriverOption) *Driver {
	d := &Driver{
		graph:  g,
		sink:   sink,
		policy: FailFast,
		mode:   Parallel,
		runIDs: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 1 {
		d.workers = runtime.GOMAXPROCS(0)
	}
	return d
}

// Workers returns the effective concurrency limit for the configured mode.
// Zero means unlimited.
func (d *Driver) Workers() int {
	switch d.mode {
	case Sequential:
		return 1
	case Unbounded:
		return 0
	default:
		return d.workers
	}
}

// Run replays every trace and blocks until all records reached the sink.
//
// Cancellation is observed between traces: a record is appended whole or
// not at all. On error (cancellation, strict unknown activity) the sink may
// hold records of the traces finished so far; callers must discard it
// rather than summarize a partial run.
func (d *Driver) Run(ctx context.Context, traces []ir.Trace) (RunSummary, error) {
	summary := RunSummary{
		RunID:   d.runIDs.Generate(),
		Policy:  d.policy.String(),
		Mode:    d.mode.String(),
		Workers: d.Workers(),
	}
	if d.graph == nil {
		return summary, NewNilGraphError()
	}
	summary.Graph = d.graph.Name()
	summary.GraphHash = d.graph.Hash()

	slog.Info("run starting",
		"run_id", summary.RunID,
		"graph", summary.Graph,
		"traces", len(traces),
		"policy", summary.Policy,
		"mode", summary.Mode,
		"workers", summary.Workers,
	)
	start := time.Now()

	checker := NewChecker(d.graph, d.policy, WithStrict(d.strict))

	records := make(chan ir.ViolationRecord)
	collected := make(chan [2]int, 1)
	go func() {
		var n, violating int
		for rec := range records {
			d.sink.Append(rec)
			n++
			if rec.Violated {
				violating++
			}
		}
		collected <- [2]int{n, violating}
	}()

	g, gctx := errgroup.WithContext(ctx)
	if limit := d.Workers(); limit > 0 {
		g.SetLimit(limit)
	}

	for _, tr := range traces {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := checker.Check(tr)
			if err != nil {
				return err
			}
			kinds := make([]string, len(rec.Violations))
			for i, v := range rec.Violations {
				kinds[i] = string(v.Kind)
			}
			recordTrace(d.policy, len(tr.Events), rec.Violated, kinds)
			slog.Debug("trace replayed",
				"run_id", summary.RunID,
				"trace", rec.TraceID,
				"violated", rec.Violated,
				"violations", len(rec.Violations),
			)

			select {
			case records <- rec:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	err := g.Wait()
	close(records)
	counts := <-collected
	summary.Traces, summary.Violating = counts[0], counts[1]
	summary.Duration = time.Since(start)

	if err == nil && summary.Traces < len(traces) {
		err = ctx.Err()
	}
	if err != nil {
		err = d.classify(err, summary.Traces, len(traces))
		runDuration.WithLabelValues(summary.Mode, "error").Observe(summary.Duration.Seconds())
		slog.Error("run failed",
			"run_id", summary.RunID,
			"replayed", summary.Traces,
			"traces", len(traces),
			"error", err,
		)
		return summary, err
	}

	runDuration.WithLabelValues(summary.Mode, "ok").Observe(summary.Duration.Seconds())
	slog.Info("run finished",
		"run_id", summary.RunID,
		"traces", summary.Traces,
		"violating", summary.Violating,
		"duration", summary.Duration,
	)
	return summary, nil
}

// classify converts worker errors into RuntimeErrors.
func (d *Driver) classify(err error, done, total int) error {
	var ue *UnknownActivityError
	if errors.As(err, &ue) {
		return ue.RuntimeError()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(done, total, err)
	}
	return err
}
