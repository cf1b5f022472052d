package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sebastiandunzer/dcr-log-filter/internal/config"
	"github.com/sebastiandunzer/dcr-log-filter/internal/store"
)

// CacheOptions holds flags shared by the cache subcommands.
type CacheOptions struct {
	*RootOptions
	Database string
	Graph    string // runs filter
}

// CachedVerdict is the listing form of a store.Verdict.
type CachedVerdict struct {
	Graph     string `json:"graph"`
	Policy    string `json:"policy"`
	Strict    bool   `json:"strict"`
	GraphHash string `json:"graph_hash"`
	LogHash   string `json:"log_hash"`
	RunID     string `json:"run_id"`
	Traces    int    `json:"traces"`
	Violating int    `json:"violating"`
}

// RunEntry is the listing form of a store.Run.
type RunEntry struct {
	Seq        int64  `json:"seq"`
	ID         string `json:"id"`
	Graph      string `json:"graph"`
	Policy     string `json:"policy"`
	Mode       string `json:"mode"`
	Workers    int    `json:"workers"`
	Traces     int    `json:"traces"`
	Violating  int    `json:"violating"`
	DurationMS int64  `json:"duration_ms"`
	Cached     bool   `json:"cached"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the verdict cache",
		Long: `Inspect and prune the sqlite verdict cache written by check --db.

The database defaults to DCRCHECK_DB.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "sqlite verdict cache path")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List cached verdicts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(cmd.Context(), opts, cmd)
		},
	}

	drop := &cobra.Command{
		Use:           "drop <graph>",
		Short:         "Drop every cached verdict of a graph",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheDrop(cmd.Context(), opts, args[0], cmd)
		},
	}

	runs := &cobra.Command{
		Use:           "runs",
		Short:         "List run history",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheRuns(cmd.Context(), opts, cmd)
		},
	}
	runs.Flags().StringVar(&opts.Graph, "graph", "", "only list runs of this graph")

	cmd.AddCommand(list, drop, runs)
	return cmd
}

// openCache opens the database named by --db or DCRCHECK_DB.
func openCache(opts *CacheOptions, formatter *OutputFormatter) (*store.Store, error) {
	path := opts.Database
	if path == "" {
		rt, err := config.Load()
		if err != nil {
			return nil, formatter.CommandError(ErrCodeGeneric, err.Error())
		}
		path = rt.DB
	}
	if path == "" {
		return nil, formatter.CommandError(ErrCodeCache, "no database: set --db or DCRCHECK_DB")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, formatter.CommandError(ErrCodeCache, err.Error())
	}
	return st, nil
}

func runCacheList(ctx context.Context, opts *CacheOptions, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts.RootOptions, cmd)
	st, err := openCache(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	verdicts, err := st.ListVerdicts(ctx)
	if err != nil {
		return formatter.CommandError(ErrCodeCache, err.Error())
	}

	entries := make([]CachedVerdict, len(verdicts))
	for i, v := range verdicts {
		entries[i] = CachedVerdict{
			Graph:     v.GraphName,
			Policy:    v.Policy,
			Strict:    v.Strict,
			GraphHash: v.GraphHash,
			LogHash:   v.LogHash,
			RunID:     v.RunID,
			Traces:    v.Traces,
			Violating: v.Violating,
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}

	w := formatter.Writer
	if len(entries) == 0 {
		fmt.Fprintln(w, "No cached verdicts.")
		return nil
	}
	fmt.Fprintf(w, "%-20s %-12s %-6s %8s %9s  %s\n", "GRAPH", "POLICY", "STRICT", "TRACES", "VIOLATING", "GRAPH HASH")
	for _, e := range entries {
		strict := "no"
		if e.Strict {
			strict = "yes"
		}
		fmt.Fprintf(w, "%-20s %-12s %-6s %8d %9d  %s\n", e.Graph, e.Policy, strict, e.Traces, e.Violating, shortHash(e.GraphHash))
	}
	return nil
}

func runCacheDrop(ctx context.Context, opts *CacheOptions, graph string, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts.RootOptions, cmd)
	st, err := openCache(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.DropVerdicts(ctx, graph)
	if err != nil {
		return formatter.CommandError(ErrCodeCache, err.Error())
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"graph": graph, "dropped": n})
	}
	fmt.Fprintf(formatter.Writer, "Dropped %d verdict(s) of graph %s\n", n, graph)
	return nil
}

func runCacheRuns(ctx context.Context, opts *CacheOptions, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts.RootOptions, cmd)
	st, err := openCache(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, opts.Graph)
	if err != nil {
		return formatter.CommandError(ErrCodeCache, err.Error())
	}

	entries := make([]RunEntry, len(runs))
	for i, r := range runs {
		entries[i] = RunEntry{
			Seq:        r.Seq,
			ID:         r.ID,
			Graph:      r.GraphName,
			Policy:     r.Policy,
			Mode:       r.Mode,
			Workers:    r.Workers,
			Traces:     r.Traces,
			Violating:  r.Violating,
			DurationMS: r.DurationMS,
			Cached:     r.Cached,
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}

	w := formatter.Writer
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, e := range entries {
		source := "replayed"
		if e.Cached {
			source = "cached"
		}
		fmt.Fprintf(w, "#%d %s %s %s/%s %d/%d violating (%s, %dms)\n",
			e.Seq, e.ID, e.Graph, e.Policy, e.Mode, e.Violating, e.Traces, source, e.DurationMS)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
