package cli

import (
	"errors"
	"fmt"

	"github.com/sebastiandunzer/dcr-log-filter/internal/compiler"
	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
)

// Error code constants - unified across all CLI commands.
// E001-E008 are the compiler load codes; the rest are CLI-only.
const (
	ErrCodeGeneric       = compiler.ErrCodeGeneric     // Generic/unknown error
	ErrCodeNotFound      = compiler.ErrCodeNotFound    // Path not found
	ErrCodeBuildFailed   = compiler.ErrCodeBuildFailed // CUE build failed
	ErrCodeWriteFailed   = "E007"                      // File write error
	ErrCodeGraphNotFound = "E009"                      // --graph names no declared graph
	ErrCodeGraphRequired = "E010"                      // several graphs and no --graph
	ErrCodeMalformed     = "E011"                      // graph rejected by dcr.New
	ErrCodeLogLoad       = "E012"                      // event log unreadable
	ErrCodeReplayFailed  = "E013"                      // run aborted (strict, cancelled)
	ErrCodeCache         = "E014"                      // verdict cache error
)

// graphError is a graph loading failure with its CLI error code.
type graphError struct {
	Code    string
	Message string
}

func (e *graphError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// loadGraph compiles the graphs under path and builds the one called name.
// name may be empty when path declares exactly one graph.
func loadGraph(path, name string) (*dcr.Graph, error) {
	result, errs := compiler.LoadGraphs(path, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		var loadErr *compiler.LoadError
		if errors.As(errs[0], &loadErr) {
			return nil, &graphError{Code: loadErr.Code, Message: loadErr.Message}
		}
		return nil, &graphError{Code: ErrCodeGeneric, Message: errs[0].Error()}
	}

	var def dcr.Definition
	switch {
	case name != "":
		d, ok := result.Lookup(name)
		if !ok {
			return nil, &graphError{
				Code:    ErrCodeGraphNotFound,
				Message: fmt.Sprintf("graph %q not found in %s (have %v)", name, path, result.Names()),
			}
		}
		def = d
	case len(result.Graphs) == 1:
		def = result.Graphs[0]
	default:
		return nil, &graphError{
			Code:    ErrCodeGraphRequired,
			Message: fmt.Sprintf("%s declares %d graphs %v; select one with --graph", path, len(result.Graphs), result.Names()),
		}
	}

	g, err := dcr.New(def)
	if err != nil {
		return nil, &graphError{Code: ErrCodeMalformed, Message: err.Error()}
	}
	return g, nil
}

// graphErrorCode returns the CLI code for a loadGraph error.
func graphErrorCode(err error) (string, string) {
	var ge *graphError
	if errors.As(err, &ge) {
		return ge.Code, ge.Message
	}
	return ErrCodeGeneric, err.Error()
}
