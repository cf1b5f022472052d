package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
	"github.com/sebastiandunzer/dcr-log-filter/internal/engine"
	"github.com/sebastiandunzer/dcr-log-filter/internal/eventlog"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Graph string
	Trace string
}

// ExplainStep is one event of the explained trace. Accepted is true when
// the event fired, which a role mismatch does not prevent. Accepting is
// true when the trace could end after this step without pending responses.
type ExplainStep struct {
	Position   int            `json:"position"`
	Activity   string         `json:"activity"`
	Role       string         `json:"role,omitempty"`
	Accepted   bool           `json:"accepted"`
	Violations []ir.Violation `json:"violations,omitempty"`
	Marking    dcr.State      `json:"marking"`
	Accepting  bool           `json:"accepting"`
}

// ExplainResult is the step-by-step replay of one trace.
type ExplainResult struct {
	Graph      string             `json:"graph"`
	TraceID    string             `json:"trace_id"`
	Initial    dcr.State          `json:"initial"`
	Steps      []ExplainStep      `json:"steps"`
	EndOfTrace []ir.Violation     `json:"end_of_trace,omitempty"`
	Record     ir.ViolationRecord `json:"record"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <graph> <log>",
		Short: "Show the marking after every event of one trace",
		Long: `Replay one trace event by event and print the marking after each step.

Every event is checked against the current marking: rejected events (✗) list
the rules they broke and leave the marking unchanged. Events performed under
the wrong role (!) still fire. Pending responses left at
the end of the trace are listed last. The verdict line is the record check
produces under the exhaustive policy.

Examples:
  dcrcheck explain loan.cue log.yaml --trace case-2
  dcrcheck explain ./graphs log.yaml --graph loan --trace case-2 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Graph, "graph", "", "graph name (required if the source declares several)")
	cmd.Flags().StringVar(&opts.Trace, "trace", "", "trace ID to explain (required)")
	_ = cmd.MarkFlagRequired("trace")

	return cmd
}

func runExplain(opts *ExplainOptions, graphPath, logPath string, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts.RootOptions, cmd)

	g, err := loadGraph(graphPath, opts.Graph)
	if err != nil {
		code, msg := graphErrorCode(err)
		return formatter.CommandError(code, msg)
	}

	log, err := eventlog.Load(logPath)
	if err != nil {
		return formatter.CommandError(ErrCodeLogLoad, err.Error())
	}

	var (
		tr    ir.Trace
		found bool
	)
	for _, t := range log.Traces {
		if t.ID == opts.Trace {
			tr, found = t, true
			break
		}
	}
	if !found {
		return formatter.CommandError(ErrCodeNotFound, fmt.Sprintf("trace %q not found in %s", opts.Trace, logPath))
	}

	result, err := explainTrace(g, tr)
	if err != nil {
		return formatter.CommandError(ErrCodeReplayFailed, err.Error())
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return outputExplainText(formatter, result)
}

// explainTrace replays tr on a fresh marking, recording the marking after
// every event. Rejected events leave the marking unchanged.
func explainTrace(g *dcr.Graph, tr ir.Trace) (*ExplainResult, error) {
	m := dcr.NewMarking(g)
	result := &ExplainResult{
		Graph:   g.Name(),
		TraceID: tr.ID,
		Initial: m.Snapshot(),
		Steps:   make([]ExplainStep, 0, len(tr.Events)),
	}

	for i, ev := range tr.Events {
		step := ExplainStep{
			Position: i,
			Activity: ir.NormalizeName(ev.Activity),
			Role:     ev.Role,
		}
		if a, ok := g.Lookup(ev.Activity); ok {
			out := m.Transition(a, ev.Role)
			step.Accepted = out.Fired
			step.Violations = out.Violations
		} else {
			step.Violations = []ir.Violation{{
				Kind:     ir.KindUnknownActivity,
				Activity: step.Activity,
				Role:     ev.Role,
			}}
		}
		for j := range step.Violations {
			step.Violations[j].Position = i
		}
		step.Marking = m.Snapshot()
		step.Accepting = m.Accepting()
		result.Steps = append(result.Steps, step)
	}
	result.EndOfTrace = m.EndOfTrace()

	rec, err := engine.NewChecker(g, engine.Exhaustive).Check(tr)
	if err != nil {
		return nil, err
	}
	result.Record = rec
	return result, nil
}

// outputExplainText prints one block per event.
func outputExplainText(formatter *OutputFormatter, result *ExplainResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Trace %s against graph %s\n", result.TraceID, result.Graph)
	fmt.Fprintf(w, "initial  %s\n\n", formatState(result.Initial))

	for _, step := range result.Steps {
		actor := step.Activity
		if step.Role != "" {
			actor += " (" + step.Role + ")"
		}
		mark := "✓"
		switch {
		case !step.Accepted:
			mark = "✗"
		case len(step.Violations) > 0:
			mark = "!"
		}
		fmt.Fprintf(w, "%3d %s %s\n", step.Position, mark, actor)
		for _, v := range step.Violations {
			fmt.Fprintf(w, "      %s\n", describeViolation(v))
		}
		state := formatState(step.Marking)
		if step.Accepting {
			state += " (accepting)"
		}
		fmt.Fprintf(w, "      %s\n", state)
	}

	fmt.Fprintln(w)
	for _, v := range result.EndOfTrace {
		fmt.Fprintf(w, "end ✗ %s\n", describeViolation(v))
	}

	if result.Record.Violated {
		fmt.Fprintf(w, "Verdict: violating (%d violation(s))\n", len(result.Record.Violations))
	} else {
		fmt.Fprintln(w, "Verdict: conformant")
	}
	return nil
}

func formatState(s dcr.State) string {
	return fmt.Sprintf("executed=[%s] included=[%s] pending=[%s]",
		strings.Join(s.Executed, ","),
		strings.Join(s.Included, ","),
		strings.Join(s.Pending, ","))
}

func describeViolation(v ir.Violation) string {
	switch v.Kind {
	case ir.KindNotIncluded:
		return fmt.Sprintf("%s: %s is excluded", v.Kind, v.Activity)
	case ir.KindConditionUnmet:
		return fmt.Sprintf("%s: %s has not been executed", v.Kind, v.Related)
	case ir.KindMilestoneBlocked:
		return fmt.Sprintf("%s: %s is still pending", v.Kind, v.Related)
	case ir.KindRoleMismatch:
		return fmt.Sprintf("%s: executed by %s, expected %s", v.Kind, v.Role, v.Related)
	case ir.KindPendingResponse:
		return fmt.Sprintf("%s: %s was never executed", v.Kind, v.Activity)
	case ir.KindUnknownActivity:
		return fmt.Sprintf("%s: %s is not declared by the graph", v.Kind, v.Activity)
	default:
		return string(v.Kind)
	}
}
