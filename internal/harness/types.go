package harness

import (
	"github.com/sebastiandunzer/dcr-log-filter/internal/analysis"
	"github.com/sebastiandunzer/dcr-log-filter/internal/engine"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	// Records holds one record per trace, ordered by trace ID.
	Records []ir.ViolationRecord `json:"records"`

	// Report is the summarized run.
	Report analysis.Report `json:"report"`

	// Summary describes the driver run. Zero when the run was expected to
	// fail and did.
	Summary engine.RunSummary `json:"summary"`

	// RunError is the runtime error code when the run aborted as expected.
	RunError string `json:"run_error,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Records: []ir.ViolationRecord{},
		Errors:  []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// recordsFor returns every record carrying traceID. Logs may repeat IDs.
func (r *Result) recordsFor(traceID string) []ir.ViolationRecord {
	var out []ir.ViolationRecord
	for _, rec := range r.Records {
		if rec.TraceID == traceID {
			out = append(out, rec)
		}
	}
	return out
}
