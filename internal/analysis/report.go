package analysis

import (
	"fmt"
	"io"
)

// Ranking is one entry of a descending count table.
type Ranking struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Report is the conformance summary of one run.
type Report struct {
	Total      int `json:"total"`
	Violating  int `json:"violating"`
	Conformant int `json:"conformant"`

	// ViolatingRatio is Violating/Total, 0 for an empty log.
	ViolatingRatio   float64 `json:"violating_ratio"`
	ConformanceRatio float64 `json:"conformance_ratio"`
	ReplayFitness    float64 `json:"replay_fitness"`

	ViolatingTraceIDs  []string `json:"violating_trace_ids"`
	ConformantTraceIDs []string `json:"conformant_trace_ids"`

	ProcessPaths []Ranking `json:"process_paths,omitempty"`
	Activities   []Ranking `json:"activities,omitempty"`
	Roles        []Ranking `json:"roles,omitempty"`
	Pending      []Ranking `json:"pending,omitempty"`
	Connections  []Ranking `json:"connections,omitempty"`
}

// AllConformant reports whether every trace conformed.
func (r Report) AllConformant() bool {
	return r.Violating == 0
}

// WriteText renders the console summary.
func (r Report) WriteText(w io.Writer) error {
	if r.Violating == 0 {
		_, err := fmt.Fprintf(w, "All %d trace(s) conform to the process model (conformance ratio 100%%)\n", r.Total)
		return err
	}

	ew := &errWriter{w: w}
	ew.printf("\n%d process path(s) failed the model\n\n", len(r.ProcessPaths))
	for _, p := range r.ProcessPaths {
		ew.printf("The process path:\n%q\n\twas non-conformant %d %s\n", p.Key, p.Count, plural(p.Count, "time", "times"))
	}
	for _, a := range r.Activities {
		ew.printf("The activity %q was executed %d %s while not enabled\n", a.Key, a.Count, plural(a.Count, "time", "times"))
	}
	for _, role := range r.Roles {
		ew.printf("The role %q was misused %d %s\n", role.Key, role.Count, plural(role.Count, "time", "times"))
	}
	for _, p := range r.Pending {
		ew.printf("The activity %q was pending at the end in %d %s\n", p.Key, p.Count, plural(p.Count, "case", "cases"))
	}
	for _, c := range r.Connections {
		ew.printf("The %s relation was violated in %d %s\n", c.Key, c.Count, plural(c.Count, "trace", "traces"))
	}
	ew.printf("All in all, %d of %d trace(s) violated the process model\n", r.Violating, r.Total)
	ew.printf("The ratio of violating cases is: %.2f%%\n", r.ViolatingRatio*100)
	ew.printf("The conformant traces ratio is: %.2f%%\n", r.ConformanceRatio*100)
	ew.printf("The replay fitness is: %.2f\n", r.ReplayFitness)
	return ew.err
}

// Canonical returns the report as a value accepted by ir.MarshalCanonical.
// Ratios are rendered with four decimals: canonical JSON carries no floats.
func (r Report) Canonical() map[string]any {
	return map[string]any{
		"total":                r.Total,
		"violating":            r.Violating,
		"conformant":           r.Conformant,
		"violating_ratio":      fmt.Sprintf("%.4f", r.ViolatingRatio),
		"conformance_ratio":    fmt.Sprintf("%.4f", r.ConformanceRatio),
		"replay_fitness":       fmt.Sprintf("%.4f", r.ReplayFitness),
		"violating_trace_ids":  stringsOrEmpty(r.ViolatingTraceIDs),
		"conformant_trace_ids": stringsOrEmpty(r.ConformantTraceIDs),
		"process_paths":        canonicalRanking(r.ProcessPaths),
		"activities":           canonicalRanking(r.Activities),
		"roles":                canonicalRanking(r.Roles),
		"pending":              canonicalRanking(r.Pending),
		"connections":          canonicalRanking(r.Connections),
	}
}

func canonicalRanking(rs []Ranking) []any {
	out := make([]any, len(rs))
	for i, r := range rs {
		out[i] = map[string]any{"key": r.Key, "count": r.Count}
	}
	return out
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// errWriter remembers the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
