package ir

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Event is a single recorded activity execution within a trace.
type Event struct {
	Activity   string            `json:"activity"`
	Role       string            `json:"role,omitempty"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Trace is one process instance: an ordered sequence of events.
type Trace struct {
	ID     string  `json:"id"`
	Events []Event `json:"events"`
}

// AssignMissingIDs names every trace without an ID after its 1-based
// position. A position already used as an explicit ID gets a ".n" suffix, so
// assigned IDs never collide with explicit ones or each other.
func AssignMissingIDs(traces []Trace) {
	taken := make(map[string]bool, len(traces))
	for _, tr := range traces {
		taken[tr.ID] = true
	}
	for i := range traces {
		if traces[i].ID != "" {
			continue
		}
		id := strconv.Itoa(i + 1)
		for n := 2; taken[id]; n++ {
			id = fmt.Sprintf("%d.%d", i+1, n)
		}
		taken[id] = true
		traces[i].ID = id
	}
}

// Path returns the activity names of all events in trace order.
func (t Trace) Path() []string {
	path := make([]string, len(t.Events))
	for i, ev := range t.Events {
		path[i] = NormalizeName(ev.Activity)
	}
	return path
}

// EventLog is an ordered collection of traces.
type EventLog struct {
	Name   string  `json:"name,omitempty"`
	Traces []Trace `json:"traces"`
}

// ViolationKind categorizes a rule violation found during replay.
type ViolationKind string

const (
	// KindNotIncluded: the activity fired while excluded.
	KindNotIncluded ViolationKind = "not_included"

	// KindConditionUnmet: a condition was included but not yet executed.
	KindConditionUnmet ViolationKind = "condition_unmet"

	// KindMilestoneBlocked: a milestone was included and pending.
	KindMilestoneBlocked ViolationKind = "milestone_blocked"

	// KindRoleMismatch: the event role differs from the activity role.
	KindRoleMismatch ViolationKind = "role_mismatch"

	// KindPendingResponse: an included activity was still pending at trace end.
	KindPendingResponse ViolationKind = "pending_response"

	// KindUnknownActivity: the event names an activity absent from the graph.
	KindUnknownActivity ViolationKind = "unknown_activity"
)

// Relation returns the connection type breached by this kind of violation.
func (k ViolationKind) Relation() string {
	switch k {
	case KindNotIncluded:
		return "include"
	case KindConditionUnmet:
		return "condition"
	case KindMilestoneBlocked:
		return "milestone"
	case KindRoleMismatch:
		return "role"
	case KindPendingResponse:
		return "response"
	default:
		return ""
	}
}

// EndOfTrace reports whether the violation is only detectable at trace end.
func (k ViolationKind) EndOfTrace() bool {
	return k == KindPendingResponse
}

// EndOfTracePosition is the Violation.Position used for end-of-trace checks.
const EndOfTracePosition = -1

// Violation is a single broken rule.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Activity string        `json:"activity"`

	// Role is the event role for role mismatches.
	Role string `json:"role,omitempty"`

	// Relation is the connection type breached ("include", "condition", ...).
	Relation string `json:"relation,omitempty"`

	// Related names the other endpoint (unmet condition, blocking milestone).
	Related string `json:"related,omitempty"`

	// Position is the 0-based event index, or EndOfTracePosition.
	Position int `json:"position"`
}

// ViolationRecord is the outcome of replaying one trace.
type ViolationRecord struct {
	TraceID    string      `json:"trace_id"`
	Path       []string    `json:"path"`
	Policy     string      `json:"policy"`
	Violated   bool        `json:"violated"`
	Violations []Violation `json:"violations,omitempty"`
}

// Add appends a violation and marks the record violated.
func (r *ViolationRecord) Add(v Violation) {
	if v.Relation == "" {
		v.Relation = v.Kind.Relation()
	}
	r.Violations = append(r.Violations, v)
	r.Violated = true
}

// PathKey renders the process path the way reports display it.
func (r ViolationRecord) PathKey() string {
	return strings.Join(r.Path, " -> ")
}

// NormalizeName trims surrounding whitespace and applies NFC so that
// composed and decomposed spellings of an activity name compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
