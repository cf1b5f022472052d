package analysis

import (
	"cmp"
	"slices"
	"sync"

	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// Aggregator collects violation records from a run.
//
// Thread-safety: all methods are safe for concurrent use. Append is atomic
// per record: Summarize never observes half of a record.
type Aggregator struct {
	mu      sync.Mutex
	records []ir.ViolationRecord
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Append adds one finished record.
func (a *Aggregator) Append(rec ir.ViolationRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

// Records returns a copy of all records ordered by trace ID.
// Records sharing a trace ID keep a deterministic order by path.
func (a *Aggregator) Records() []ir.ViolationRecord {
	a.mu.Lock()
	out := slices.Clone(a.records)
	a.mu.Unlock()

	slices.SortStableFunc(out, func(x, y ir.ViolationRecord) int {
		return cmp.Or(
			cmp.Compare(x.TraceID, y.TraceID),
			cmp.Compare(x.PathKey(), y.PathKey()),
		)
	})
	return out
}

// Summarize computes the report over every record appended so far.
// Call it after the run's barrier; mid-run summaries are consistent but
// incomplete.
func (a *Aggregator) Summarize() Report {
	return Summarize(a.Records())
}

// Summarize computes a report over records.
//
// Counting rules:
//   - ProcessPaths: one per violating trace, keyed by its path
//   - Activities: one per event that broke a rule, keyed by its activity
//   - Roles: one per role mismatch, keyed by the event role
//   - Pending: one per trace in which the activity was pending at the end
//   - Connections: one per trace and breached relation type
func Summarize(records []ir.ViolationRecord) Report {
	r := Report{Total: len(records)}

	paths := counter{}
	activities := counter{}
	roles := counter{}
	pending := counter{}
	connections := counter{}

	for _, rec := range records {
		if !rec.Violated {
			r.Conformant++
			r.ConformantTraceIDs = append(r.ConformantTraceIDs, rec.TraceID)
			continue
		}
		r.Violating++
		r.ViolatingTraceIDs = append(r.ViolatingTraceIDs, rec.TraceID)
		paths.inc(rec.PathKey())

		rejected := map[int]bool{}
		relations := map[string]bool{}
		for _, v := range rec.Violations {
			if v.Relation != "" {
				relations[v.Relation] = true
			}
			switch {
			case v.Kind.EndOfTrace():
				pending.inc(v.Activity)
			case !rejected[v.Position]:
				rejected[v.Position] = true
				activities.inc(v.Activity)
			}
			if v.Kind == ir.KindRoleMismatch {
				roles.inc(v.Role)
			}
		}
		for rel := range relations {
			connections.inc(rel)
		}
	}

	slices.Sort(r.ViolatingTraceIDs)
	slices.Sort(r.ConformantTraceIDs)

	if r.Total > 0 {
		r.ViolatingRatio = float64(r.Violating) / float64(r.Total)
	}
	r.ConformanceRatio = 1 - r.ViolatingRatio
	r.ReplayFitness = 1 - r.ViolatingRatio

	r.ProcessPaths = paths.ranking()
	r.Activities = activities.ranking()
	r.Roles = roles.ranking()
	r.Pending = pending.ranking()
	r.Connections = connections.ranking()
	return r
}

type counter map[string]int

func (c counter) inc(key string) { c[key]++ }

func (c counter) ranking() []Ranking {
	if len(c) == 0 {
		return nil
	}
	out := make([]Ranking, 0, len(c))
	for k, n := range c {
		out = append(out, Ranking{Key: k, Count: n})
	}
	slices.SortFunc(out, func(x, y Ranking) int {
		return cmp.Or(
			cmp.Compare(y.Count, x.Count),
			cmp.Compare(x.Key, y.Key),
		)
	})
	return out
}
