package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sebastiandunzer/dcr-log-filter/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Graphs   []string                   `json:"graphs"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph>",
		Short: "Validate graph definitions without replaying a log",
		Long: `Validate CUE graph definitions.

Performs syntax checking, schema validation (undeclared activities, duplicate
names, unknown relation kinds) and reports condition cycles as warnings.
<graph> is a .cue file or a directory of CUE files.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts, cmd)

	result, validationErrors, err := ValidateGraphs(path)
	if err != nil {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			return formatter.CommandError(loadErr.Code, loadErr.Message)
		}
		return formatter.CommandError(ErrCodeGeneric, err.Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, path)

	var warnings []compiler.CycleWarning
	for i := range result.Graphs {
		def := &result.Graphs[i]
		formatter.VerboseLog("Validating graph: %s", def.Name)
		warnings = append(warnings, compiler.AnalyzeCycles(def)...)
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, result.Names(), validationErrors)
	}

	return outputValidateSuccess(formatter, result.Names(), warnings)
}

// ValidateGraphs loads every graph under path and collects all compile and
// schema errors. The error result is only set when path cannot be loaded at
// all.
func ValidateGraphs(path string) (*compiler.LoadResult, []compiler.ValidationError, error) {
	result, loadErrors := compiler.LoadGraphs(path, compiler.LoadModeCollectAll)
	if result == nil && len(loadErrors) > 0 {
		return nil, nil, loadErrors[0]
	}

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			})
			continue
		}
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "load",
			Message: err.Error(),
			Code:    ErrCodeGeneric,
		})
	}

	for i := range result.Graphs {
		validationErrors = append(validationErrors, compiler.Validate(&result.Graphs[i])...)
	}
	return result, validationErrors, nil
}

// lineOf extracts the line number of a load error, 0 if unknown.
func lineOf(err *compiler.LoadError) int {
	if err.Pos.IsValid() {
		return err.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, graphs []string, warnings []compiler.CycleWarning) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Graphs: graphs, Warnings: warnings})
	}

	fmt.Fprintf(formatter.Writer, "✓ All graphs valid (%d graph(s))\n", len(graphs))
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w.Message)
	}
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, graphs []string, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Graphs: graphs,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		if err := formatter.Respond(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
