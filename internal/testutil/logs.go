package testutil

import (
	"fmt"
	"math/rand"

	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// TraceGenerator builds pseudo-random event logs for replay tests.
//
// Events draw their activity from Activities and their role from Roles; an
// empty role leaves the event unattributed. The same generator settings and
// seed always produce the same log, timestamps included.
type TraceGenerator struct {
	Activities []string
	Roles      []string
	MaxEvents  int // per trace, inclusive; 0 allows empty traces only
	Seed       int64
	Stamp      bool // set event timestamps from a DeterministicClock
}

// Traces generates n traces with IDs case-0000, case-0001, ...
func (g TraceGenerator) Traces(n int) []ir.Trace {
	rng := rand.New(rand.NewSource(g.Seed))
	clock := NewDeterministicClock(DefaultEpoch, 0)

	traces := make([]ir.Trace, n)
	for i := range traces {
		tr := ir.Trace{ID: fmt.Sprintf("case-%04d", i)}
		for j := rng.Intn(g.MaxEvents + 1); j > 0; j-- {
			ev := ir.Event{Activity: g.Activities[rng.Intn(len(g.Activities))]}
			if len(g.Roles) > 0 {
				ev.Role = g.Roles[rng.Intn(len(g.Roles))]
			}
			if g.Stamp {
				ts := clock.Next()
				ev.Timestamp = &ts
			}
			tr.Events = append(tr.Events, ev)
		}
		traces[i] = tr
	}
	return traces
}

// Log wraps Traces(n) in a named event log.
func (g TraceGenerator) Log(name string, n int) ir.EventLog {
	return ir.EventLog{Name: name, Traces: g.Traces(n)}
}
