package engine

import (
	"fmt"
	"strings"

	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// Policy selects how much of a trace is examined once a violation is found.
// One policy is chosen per run.
type Policy int

const (
	// FailFast stops replaying a trace at its first violated transition.
	// The end-of-trace check only runs when no event was rejected.
	FailFast Policy = iota

	// Exhaustive replays every event, records every violation and always
	// runs the end-of-trace check.
	Exhaustive
)

// String returns the flag spelling of the policy.
func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Exhaustive:
		return "exhaustive"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name as accepted on the command line and in
// the environment. Matching is case-insensitive; "failfast" and "fail_fast"
// are accepted aliases.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail-fast", "failfast", "fail_fast":
		return FailFast, nil
	case "exhaustive":
		return Exhaustive, nil
	default:
		return FailFast, fmt.Errorf("unknown policy %q (want fail-fast or exhaustive)", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so a Policy can be read
// straight from flags and environment variables.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Checker replays single traces against a graph.
//
// A Checker holds no per-trace state: every Check call builds a fresh
// marking. Safe for concurrent use as long as the graph is not mutated,
// which dcr.Graph guarantees.
type Checker struct {
	graph  *dcr.Graph
	policy Policy
	strict bool
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithStrict makes Check fail with *UnknownActivityError instead of
// recording an unknown_activity violation.
func WithStrict(strict bool) CheckerOption {
	return func(c *Checker) {
		c.strict = strict
	}
}

// NewChecker creates a Checker for g under policy.
func NewChecker(g *dcr.Graph, policy Policy, opts ...CheckerOption) *Checker {
	c := &Checker{
		graph:  g,
		policy: policy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the checker's policy.
func (c *Checker) Policy() Policy { return c.policy }

// Check replays trace from the graph's initial marking and returns its
// violation record.
//
// Rejected events leave the marking unchanged; events performed under the
// wrong role still fire. After any violation replay continues with the next
// event (Exhaustive) or stops (FailFast). An event naming an activity
// the graph does not declare is recorded as an unknown_activity violation,
// or returned as *UnknownActivityError when the checker is strict.
//
// Check is deterministic: the same graph, trace and policy always produce
// the same record.
func (c *Checker) Check(trace ir.Trace) (ir.ViolationRecord, error) {
	if c.graph == nil {
		return ir.ViolationRecord{}, NewNilGraphError()
	}

	rec := ir.ViolationRecord{
		TraceID: trace.ID,
		Path:    trace.Path(),
		Policy:  c.policy.String(),
	}
	m := dcr.NewMarking(c.graph)

	for i, ev := range trace.Events {
		a, ok := c.graph.Lookup(ev.Activity)
		if !ok {
			name := ir.NormalizeName(ev.Activity)
			if c.strict {
				return ir.ViolationRecord{}, &UnknownActivityError{
					TraceID:  trace.ID,
					Activity: name,
					Position: i,
				}
			}
			rec.Add(ir.Violation{
				Kind:     ir.KindUnknownActivity,
				Activity: name,
				Role:     ev.Role,
				Position: i,
			})
			if c.policy == FailFast {
				return rec, nil
			}
			continue
		}

		out := m.Transition(a, ev.Role)
		for _, v := range out.Violations {
			v.Position = i
			rec.Add(v)
		}
		if out.Violated() && c.policy == FailFast {
			return rec, nil
		}
	}

	for _, v := range m.EndOfTrace() {
		rec.Add(v)
	}
	return rec, nil
}
