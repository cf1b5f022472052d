package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sebastiandunzer/dcr-log-filter/internal/analysis"
	"github.com/sebastiandunzer/dcr-log-filter/internal/config"
	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
	"github.com/sebastiandunzer/dcr-log-filter/internal/engine"
	"github.com/sebastiandunzer/dcr-log-filter/internal/eventlog"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
	"github.com/sebastiandunzer/dcr-log-filter/internal/store"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Graph      string // graph name, required when the source declares several
	Policy     string
	Mode       string
	Workers    int
	Strict     bool
	Database   string // verdict cache; empty disables caching
	Out        string // filtered log output path
	MetricsOut string // prometheus text file output path
}

// CheckResult is the JSON payload of a check run.
type CheckResult struct {
	RunID      string          `json:"run_id"`
	Graph      string          `json:"graph"`
	GraphHash  string          `json:"graph_hash"`
	Log        string          `json:"log"`
	LogHash    string          `json:"log_hash"`
	Policy     string          `json:"policy"`
	Strict     bool            `json:"strict"`
	Mode       string          `json:"mode"`
	Workers    int             `json:"workers"`
	Cached     bool            `json:"cached"`
	DurationMS int64           `json:"duration_ms"`
	Report     analysis.Report `json:"report"`
	Out        string          `json:"out,omitempty"`
	Removed    int             `json:"removed,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <graph> <log>",
		Short: "Replay an event log against a DCR graph",
		Long: `Replay every trace of an event log against a DCR graph and report
the traces that violate it.

<graph> is a .cue file or a directory of CUE files; <log> is a YAML or JSON
event log. Flags override the DCRCHECK_* environment defaults.

Exit codes:
  0 - All traces conform
  1 - One or more traces violate the graph
  2 - Command error (invalid paths, unreadable log, strict abort, etc.)

Examples:
  dcrcheck check loan.cue log.yaml
  dcrcheck check ./graphs log.yaml --graph loan --policy exhaustive
  dcrcheck check loan.cue log.yaml --out conformant.yaml --db verdicts.db
  dcrcheck check loan.cue log.json --mode sequential --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Graph, "graph", "", "graph name (required if the source declares several)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "fail-fast", "replay policy (fail-fast|exhaustive)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "parallel", "scheduling mode (sequential|parallel|unbounded)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker pool size in parallel mode (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "abort on events naming undeclared activities")
	cmd.Flags().StringVar(&opts.Database, "db", "", "sqlite verdict cache path")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the log without violating traces to this path")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write prometheus metrics in text format to this path")

	return cmd
}

// resolveRuntime merges environment defaults with the flags the user set.
func resolveRuntime(opts *CheckOptions, cmd *cobra.Command) (config.Runtime, error) {
	rt, err := config.Load()
	if err != nil {
		return config.Runtime{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("policy") {
		if rt.Policy, err = engine.ParsePolicy(opts.Policy); err != nil {
			return config.Runtime{}, err
		}
	}
	if flags.Changed("mode") {
		if rt.Mode, err = engine.ParseMode(opts.Mode); err != nil {
			return config.Runtime{}, err
		}
	}
	if flags.Changed("workers") {
		rt.Workers = opts.Workers
	}
	if flags.Changed("strict") {
		rt.Strict = opts.Strict
	}
	if flags.Changed("db") {
		rt.DB = opts.Database
	}
	return rt, rt.Validate()
}

func runCheck(ctx context.Context, opts *CheckOptions, graphPath, logPath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newOutputFormatter(opts.RootOptions, cmd)

	rt, err := resolveRuntime(opts, cmd)
	if err != nil {
		return formatter.CommandError(ErrCodeGeneric, err.Error())
	}

	g, err := loadGraph(graphPath, opts.Graph)
	if err != nil {
		code, msg := graphErrorCode(err)
		return formatter.CommandError(code, msg)
	}
	formatter.VerboseLog("Loaded graph %s (%d activities, hash %s)", g.Name(), g.Len(), g.Hash())

	log, err := eventlog.Load(logPath)
	if err != nil {
		return formatter.CommandError(ErrCodeLogLoad, err.Error())
	}
	if log.Name == "" {
		log.Name = strings.TrimSuffix(filepath.Base(logPath), filepath.Ext(logPath))
	}
	logHash, err := ir.LogHash(log)
	if err != nil {
		return formatter.CommandError(ErrCodeLogLoad, err.Error())
	}
	formatter.VerboseLog("Loaded log %s (%d traces, hash %s)", log.Name, len(log.Traces), logHash)

	var st *store.Store
	if rt.DB != "" {
		st, err = store.Open(rt.DB)
		if err != nil {
			return formatter.CommandError(ErrCodeCache, err.Error())
		}
		defer st.Close()
	}

	result, err := checkLog(ctx, st, g, log, logHash, rt)
	if err != nil {
		var re *engine.RuntimeError
		if errors.As(err, &re) {
			return formatter.CommandError(ErrCodeReplayFailed, re.Error())
		}
		return formatter.CommandError(ErrCodeCache, err.Error())
	}
	result.Log = log.Name

	if opts.Out != "" {
		filtered := eventlog.Filter(log, result.Report.ViolatingTraceIDs)
		if err := eventlog.Save(opts.Out, filtered.Log); err != nil {
			return formatter.CommandError(ErrCodeWriteFailed, err.Error())
		}
		result.Out = opts.Out
		result.Removed = filtered.Removed
		slog.Info("filtered log written", "path", opts.Out, "kept", len(filtered.Log.Traces), "removed", filtered.Removed)
	}

	if opts.MetricsOut != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsOut, prometheus.DefaultGatherer); err != nil {
			return formatter.CommandError(ErrCodeWriteFailed, fmt.Sprintf("writing metrics: %v", err))
		}
	}

	if err := outputCheckResult(formatter, result); err != nil {
		return err
	}

	if !result.Report.AllConformant() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d trace(s) violated graph %s",
			result.Report.Violating, result.Report.Total, result.Graph))
	}
	return nil
}

// checkLog serves the report from st when a valid verdict is cached and
// replays the log otherwise. st may be nil.
func checkLog(ctx context.Context, st *store.Store, g *dcr.Graph, log ir.EventLog, logHash string, rt config.Runtime) (*CheckResult, error) {
	agg := analysis.NewAggregator()
	driver := engine.NewDriver(g, agg, rt.DriverOptions()...)

	result := &CheckResult{
		Graph:     g.Name(),
		GraphHash: g.Hash(),
		LogHash:   logHash,
		Policy:    rt.Policy.String(),
		Strict:    rt.Strict,
		Mode:      rt.Mode.String(),
		Workers:   driver.Workers(),
	}

	if st != nil {
		report, ok, err := cachedReport(ctx, st, result)
		if err != nil {
			return nil, err
		}
		if ok {
			result.RunID = engine.UUIDv7Generator{}.Generate()
			result.Cached = true
			result.Report = report
			slog.Info("verdict cache hit", "graph", result.Graph, "policy", result.Policy, "strict", result.Strict)
			return result, recordRun(ctx, st, result)
		}
	}

	summary, err := driver.Run(ctx, log.Traces)
	if err != nil {
		return nil, err
	}
	result.RunID = summary.RunID
	result.DurationMS = summary.Duration.Milliseconds()
	result.Report = agg.Summarize()

	if st == nil {
		return result, nil
	}

	data, err := json.Marshal(result.Report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	err = st.PutVerdicts(ctx, store.Verdict{
		GraphName: result.Graph,
		Policy:    result.Policy,
		Strict:    result.Strict,
		GraphHash: result.GraphHash,
		LogHash:   result.LogHash,
		RunID:     result.RunID,
		Traces:    result.Report.Total,
		Violating: result.Report.Violating,
		Report:    data,
	})
	if err != nil {
		return nil, err
	}
	return result, recordRun(ctx, st, result)
}

// cachedReport returns the cached report for result's graph, policy and
// strictness if it was computed for the same graph and log content.
func cachedReport(ctx context.Context, st *store.Store, result *CheckResult) (analysis.Report, bool, error) {
	v, err := st.GetVerdicts(ctx, result.Graph, result.Policy, result.Strict)
	if errors.Is(err, sql.ErrNoRows) {
		return analysis.Report{}, false, nil
	}
	if err != nil {
		return analysis.Report{}, false, err
	}
	if !v.Valid(result.GraphHash, result.LogHash) {
		slog.Debug("stale verdict", "graph", result.Graph, "policy", result.Policy, "run_id", v.RunID)
		return analysis.Report{}, false, nil
	}

	var report analysis.Report
	if err := json.Unmarshal(v.Report, &report); err != nil {
		return analysis.Report{}, false, fmt.Errorf("decode cached report: %w", err)
	}
	return report, true, nil
}

func recordRun(ctx context.Context, st *store.Store, result *CheckResult) error {
	_, err := st.RecordRun(ctx, store.Run{
		ID:         result.RunID,
		GraphName:  result.Graph,
		GraphHash:  result.GraphHash,
		LogHash:    result.LogHash,
		Policy:     result.Policy,
		Mode:       result.Mode,
		Workers:    result.Workers,
		Traces:     result.Report.Total,
		Violating:  result.Report.Violating,
		DurationMS: result.DurationMS,
		Cached:     result.Cached,
	})
	return err
}

// outputCheckResult prints the report.
func outputCheckResult(formatter *OutputFormatter, result *CheckResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	source := "replayed"
	if result.Cached {
		source = "cached verdict"
	}
	fmt.Fprintf(w, "Checked %d trace(s) of %s against graph %s (policy %s, %s)\n",
		result.Report.Total, result.Log, result.Graph, result.Policy, source)
	if err := result.Report.WriteText(w); err != nil {
		return err
	}
	if result.Out != "" {
		fmt.Fprintf(w, "Wrote %d conformant trace(s) to %s (%d removed)\n",
			result.Report.Total-result.Removed, result.Out, result.Removed)
	}
	return nil
}

