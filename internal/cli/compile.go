package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sebastiandunzer/dcr-log-filter/internal/compiler"
	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledGraph summarizes one compiled graph.
type CompiledGraph struct {
	Name       string `json:"name"`
	Hash       string `json:"hash"`
	Activities int    `json:"activities"`
	Relations  int    `json:"relations"`
}

// CompilationResult holds the compiled graphs.
type CompilationResult struct {
	Graphs []CompiledGraph `json:"graphs"`
	Output string          `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <graph>",
		Short: "Compile CUE graphs to canonical JSON",
		Long: `Compile CUE graph definitions to their canonical JSON description.

Every graph is built exactly as check would build it. The output carries each
graph's content hash, the identity verdicts are cached under.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts.RootOptions, cmd)

	// Collect-all so one broken graph does not hide the others
	loadResult, loadErrors := compiler.LoadGraphs(path, compiler.LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return formatter.CommandError(code, message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	graphs := make([]*dcr.Graph, 0, len(loadResult.Graphs))
	for _, def := range loadResult.Graphs {
		formatter.VerboseLog("Compiling graph: %s", def.Name)
		g, err := dcr.New(def)
		if err != nil {
			loadErrors = append(loadErrors, err)
			continue
		}
		graphs = append(graphs, g)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{Graphs: make([]CompiledGraph, len(graphs))}
	for i, g := range graphs {
		result.Graphs[i] = CompiledGraph{
			Name:       g.Name(),
			Hash:       g.Hash(),
			Activities: g.Len(),
			Relations:  len(loadResult.Graphs[i].Relations),
		}
	}

	if opts.Output != "" {
		if err := writeGraphsToFile(graphs, opts.Output); err != nil {
			return formatter.CommandError(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
		result.Output = opts.Output
	}

	return outputCompileSuccess(formatter, result)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d graph(s)\n\n", len(result.Graphs))
	for _, g := range result.Graphs {
		fmt.Fprintf(formatter.Writer, "  %s: %d activit%s, %d relation(s), hash %s\n",
			g.Name, g.Activities, pluralY(g.Activities), g.Relations, shortHash(g.Hash))
	}

	if result.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote canonical graphs to %s\n", result.Output)
	}
	return nil
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		// JSON format - use CLIResponse with first error
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		if err := formatter.Respond(response); err != nil {
			return err
		}

		// Compilation errors are command-level errors (exit code 2)
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	if dcr.IsMalformedGraph(err) {
		return ErrCodeMalformed, err.Error()
	}
	return ErrCodeGeneric, err.Error()
}

// writeGraphsToFile writes the canonical description of every graph.
func writeGraphsToFile(graphs []*dcr.Graph, filename string) error {
	entries := make([]any, len(graphs))
	for i, g := range graphs {
		entries[i] = map[string]any{
			"name":  g.Name(),
			"hash":  g.Hash(),
			"graph": g.Describe(),
		}
	}

	data, err := ir.MarshalCanonical(map[string]any{"graphs": entries})
	if err != nil {
		return fmt.Errorf("marshaling graphs: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
