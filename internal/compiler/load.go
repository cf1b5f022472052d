package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
)

// Load error codes, shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoGraphs    = "E008" // No graph definitions found
)

// LoadMode controls how errors are handled during graph loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the graph definitions found under a path.
type LoadResult struct {
	Graphs    []dcr.Definition // sorted by name
	CUEValue  cue.Value        // The raw CUE value for additional processing
	FileCount int              // Number of CUE files read
}

// Names returns the graph names in sorted order.
func (r *LoadResult) Names() []string {
	names := make([]string, len(r.Graphs))
	for i, g := range r.Graphs {
		names[i] = g.Name
	}
	return names
}

// Lookup returns the definition called name.
func (r *LoadResult) Lookup(name string) (dcr.Definition, bool) {
	for _, g := range r.Graphs {
		if g.Name == name {
			return g, true
		}
	}
	return dcr.Definition{}, false
}

// LoadError represents an error that occurred during graph loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadGraphs loads and compiles every graph under path.
//
// path is either a single .cue file or a directory holding one CUE package.
// Graphs are declared under the top-level "graph" struct:
//
//	graph: loan: { activity: { ... } }
//
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all compile errors.
func LoadGraphs(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing graph path: %v", err)}}
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}}
		}
		return LoadGraphSource(path, data, mode)
	}

	cueFiles, err := FindCUEFiles(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	result := &LoadResult{
		CUEValue:  cuecontext.New().BuildInstance(inst),
		FileCount: len(cueFiles),
	}
	if err := result.CUEValue.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	return result, compileGraphs(result, mode)
}

// LoadGraphSource compiles graphs from in-memory CUE source. filename is
// only used in error positions.
func LoadGraphSource(filename string, src []byte, mode LoadMode) (*LoadResult, []error) {
	result := &LoadResult{
		CUEValue:  cuecontext.New().CompileBytes(src, cue.Filename(filename)),
		FileCount: 1,
	}
	if err := result.CUEValue.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return result, compileGraphs(result, mode)
}

// compileGraphs fills result.Graphs from result.CUEValue.
func compileGraphs(result *LoadResult, mode LoadMode) []error {
	var errs []error

	graphsVal := result.CUEValue.LookupPath(cue.ParsePath("graph"))
	if !graphsVal.Exists() {
		return []error{&LoadError{Code: ErrCodeNoGraphs, Message: "no graph definitions found"}}
	}

	iter, err := graphsVal.Fields()
	if err != nil {
		return []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating graphs: %v", err)}}
	}
	for iter.Next() {
		def, compileErr := CompileGraph(iter.Value())
		if compileErr != nil {
			errs = append(errs, convertCompileError(compileErr, "graph."+iter.Label()))
			if mode == LoadModeFailFast {
				return errs
			}
			continue
		}
		result.Graphs = append(result.Graphs, *def)
	}

	sort.Slice(result.Graphs, func(i, j int) bool {
		return result.Graphs[i].Name < result.Graphs[j].Name
	})

	if len(result.Graphs) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoGraphs, Message: "no graph definitions found"})
	}
	return errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeGeneric,
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
