package dcr

import (
	"maps"
	"slices"

	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

type set map[string]struct{}

func newSet(names []string) set {
	s := make(set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s set) has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s set) sorted() []string {
	out := slices.Collect(maps.Keys(s))
	slices.Sort(out)
	return out
}

// Marking is the execution state of one replay.
//
// NOT safe for concurrent use: a Marking belongs to exactly one trace replay.
type Marking struct {
	executed set
	included set
	pending  set
}

// NewMarking returns the initial marking declared by g.
func NewMarking(g *Graph) *Marking {
	return &Marking{
		executed: newSet(g.initialExecuted),
		included: newSet(g.initialIncluded),
		pending:  newSet(g.initialPending),
	}
}

// Outcome is the result of a single transition attempt.
//
// Fired is false when an enablement rule rejected the event. A role
// mismatch is reported in Violations but does not stop the event from
// firing.
type Outcome struct {
	Fired      bool
	Violations []ir.Violation
}

// Violated reports whether the event broke any rule.
func (o Outcome) Violated() bool {
	return len(o.Violations) > 0
}

// State is a sorted snapshot of a marking.
type State struct {
	Executed []string `json:"executed"`
	Included []string `json:"included"`
	Pending  []string `json:"pending"`
}

// Snapshot returns sorted copies of the three sets.
func (m *Marking) Snapshot() State {
	return State{
		Executed: m.executed.sorted(),
		Included: m.included.sorted(),
		Pending:  m.pending.sorted(),
	}
}

// Executed reports whether name has fired in this replay.
func (m *Marking) Executed(name string) bool { return m.executed.has(name) }

// Included reports whether name is currently included.
func (m *Marking) Included(name string) bool { return m.included.has(name) }

// Pending reports whether name has an outstanding response obligation.
func (m *Marking) Pending(name string) bool { return m.pending.has(name) }

// Check returns the rules that firing a (by an event carrying role) would
// break, without changing the marking. Violation positions are left at zero
// for the caller to fill in.
//
// Enablement failures are classified exclusively: not_included if a is
// excluded, else one condition_unmet per unmet condition, else one
// milestone_blocked per blocking milestone. A role_mismatch is added on top
// whenever both roles are set and differ.
func (m *Marking) Check(a *Activity, role string) []ir.Violation {
	violations := m.blocking(a)
	if a.Role != "" && role != "" && a.Role != role {
		violations = append(violations, ir.Violation{
			Kind:     ir.KindRoleMismatch,
			Activity: a.Name,
			Role:     role,
			Relation: ir.KindRoleMismatch.Relation(),
			Related:  a.Role,
		})
	}
	return violations
}

// blocking returns the enablement violations of a. a is enabled iff the
// result is empty.
func (m *Marking) blocking(a *Activity) []ir.Violation {
	if !m.included.has(a.Name) {
		return []ir.Violation{{
			Kind:     ir.KindNotIncluded,
			Activity: a.Name,
			Relation: ir.KindNotIncluded.Relation(),
		}}
	}

	var violations []ir.Violation
	for _, c := range a.Conditions {
		if m.included.has(c) && !m.executed.has(c) {
			violations = append(violations, ir.Violation{
				Kind:     ir.KindConditionUnmet,
				Activity: a.Name,
				Relation: ir.KindConditionUnmet.Relation(),
				Related:  c,
			})
		}
	}
	if len(violations) > 0 {
		return violations
	}

	for _, ms := range a.Milestones {
		if m.included.has(ms) && m.pending.has(ms) {
			violations = append(violations, ir.Violation{
				Kind:     ir.KindMilestoneBlocked,
				Activity: a.Name,
				Relation: ir.KindMilestoneBlocked.Relation(),
				Related:  ms,
			})
		}
	}
	return violations
}

// Transition attempts to fire a. When a is not enabled the event is
// rejected and the marking stays unchanged; otherwise the effects of a are
// applied, even if the event's role does not match.
func (m *Marking) Transition(a *Activity, role string) Outcome {
	violations := m.Check(a, role)
	for _, v := range violations {
		if v.Kind != ir.KindRoleMismatch {
			return Outcome{Violations: violations}
		}
	}
	m.fire(a)
	return Outcome{Fired: true, Violations: violations}
}

// fire applies the effects of a. New sets are derived from the
// pre-transition snapshot:
//
//	Executed' = Executed ∪ {a}
//	Pending'  = (Pending \ {a}) ∪ a.Responses
//	Included' = (Included \ a.Excludes) ∪ a.Includes
func (m *Marking) fire(a *Activity) {
	pending := maps.Clone(m.pending)
	delete(pending, a.Name)
	for _, r := range a.Responses {
		pending[r] = struct{}{}
	}

	included := maps.Clone(m.included)
	for _, e := range a.Excludes {
		delete(included, e)
	}
	for _, i := range a.Includes {
		included[i] = struct{}{}
	}

	m.executed[a.Name] = struct{}{}
	m.pending = pending
	m.included = included
}

// EndOfTrace returns one pending_response violation for every activity that
// is still pending and included, sorted by activity name. Pending activities
// that were excluded carry no obligation.
func (m *Marking) EndOfTrace() []ir.Violation {
	var violations []ir.Violation
	for _, name := range m.pending.sorted() {
		if !m.included.has(name) {
			continue
		}
		violations = append(violations, ir.Violation{
			Kind:     ir.KindPendingResponse,
			Activity: name,
			Relation: ir.KindPendingResponse.Relation(),
			Position: ir.EndOfTracePosition,
		})
	}
	return violations
}

// Accepting reports whether the trace could end here without violations.
func (m *Marking) Accepting() bool {
	return len(m.EndOfTrace()) == 0
}
