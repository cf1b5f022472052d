package dcr

import (
	"fmt"
	"slices"

	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// RelationKind names one of the DCR relation types.
type RelationKind string

const (
	Condition RelationKind = "condition"
	Response  RelationKind = "response"
	Exclude   RelationKind = "exclude"
	Include   RelationKind = "include"
	Milestone RelationKind = "milestone"
)

// RelationKinds lists the supported relations in a stable order.
var RelationKinds = []RelationKind{Condition, Response, Exclude, Include, Milestone}

// Valid reports whether k is a known relation kind.
func (k RelationKind) Valid() bool {
	return slices.Contains(RelationKinds, k)
}

// Definition is the parsed, not yet validated description of a graph.
// Boundary code (the CUE compiler, tests) produces Definitions; New turns
// them into an immutable Graph.
type Definition struct {
	Name       string
	Activities []ActivityDef
	Relations  []RelationDef
}

// ActivityDef declares an activity and its initial marking.
type ActivityDef struct {
	Name     string
	Role     string
	Included bool
	Pending  bool
	Executed bool
}

// RelationDef declares one relation From → To.
type RelationDef struct {
	Kind RelationKind
	From string
	To   string
}

// Activity is a graph node. All relation slices are sorted and de-duplicated.
// Activities are read-only once the Graph is built.
type Activity struct {
	Name string
	Role string

	// Conditions must have been executed (or be excluded) before this fires.
	Conditions []string
	// Responses become pending when this fires.
	Responses []string
	// Excludes are removed from Included when this fires.
	Excludes []string
	// Includes are added to Included when this fires.
	Includes []string
	// Milestones block this activity while they are included and pending.
	Milestones []string
}

// Graph is an immutable DCR graph. Safe for concurrent reads.
type Graph struct {
	name       string
	hash       string
	activities map[string]*Activity
	names      []string

	initialIncluded []string
	initialPending  []string
	initialExecuted []string
}

// New validates def and builds a Graph.
//
// Returns a *MalformedGraphError if an activity name is empty or duplicated
// (after normalization), if a relation references an unknown activity, or if
// a relation kind is not recognised.
func New(def Definition) (*Graph, error) {
	g := &Graph{
		name:       def.Name,
		activities: make(map[string]*Activity, len(def.Activities)),
	}

	for _, ad := range def.Activities {
		name := ir.NormalizeName(ad.Name)
		if name == "" {
			return nil, malformed(def.Name, ReasonEmptyName, "", "activity name is empty")
		}
		if _, dup := g.activities[name]; dup {
			return nil, malformed(def.Name, ReasonDuplicateActivity, name, "activity declared more than once")
		}
		g.activities[name] = &Activity{Name: name, Role: ad.Role}
		g.names = append(g.names, name)

		if ad.Included {
			g.initialIncluded = append(g.initialIncluded, name)
		}
		if ad.Pending {
			g.initialPending = append(g.initialPending, name)
		}
		if ad.Executed {
			g.initialExecuted = append(g.initialExecuted, name)
		}
	}

	for _, rd := range def.Relations {
		if !rd.Kind.Valid() {
			return nil, malformed(def.Name, ReasonUnknownRelation, "", "unknown relation kind %q", rd.Kind)
		}
		from, to := ir.NormalizeName(rd.From), ir.NormalizeName(rd.To)
		src, ok := g.activities[from]
		if !ok {
			return nil, malformed(def.Name, ReasonUnknownActivity, from, "%s relation source is not declared", rd.Kind)
		}
		dst, ok := g.activities[to]
		if !ok {
			return nil, malformed(def.Name, ReasonUnknownActivity, to, "%s relation target is not declared", rd.Kind)
		}

		switch rd.Kind {
		case Condition:
			dst.Conditions = append(dst.Conditions, from)
		case Milestone:
			dst.Milestones = append(dst.Milestones, from)
		case Response:
			src.Responses = append(src.Responses, to)
		case Exclude:
			src.Excludes = append(src.Excludes, to)
		case Include:
			src.Includes = append(src.Includes, to)
		}
	}

	for _, a := range g.activities {
		a.Conditions = sortedUnique(a.Conditions)
		a.Responses = sortedUnique(a.Responses)
		a.Excludes = sortedUnique(a.Excludes)
		a.Includes = sortedUnique(a.Includes)
		a.Milestones = sortedUnique(a.Milestones)
	}
	slices.Sort(g.names)
	g.initialIncluded = sortedUnique(g.initialIncluded)
	g.initialPending = sortedUnique(g.initialPending)
	g.initialExecuted = sortedUnique(g.initialExecuted)

	hash, err := ir.GraphHash(g.Describe())
	if err != nil {
		return nil, fmt.Errorf("hash graph %q: %w", def.Name, err)
	}
	g.hash = hash

	return g, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNew(def Definition) *Graph {
	g, err := New(def)
	if err != nil {
		panic(err)
	}
	return g
}

// Lookup resolves an activity by name. The second result is false when the
// graph has no such activity.
func (g *Graph) Lookup(name string) (*Activity, bool) {
	a, ok := g.activities[ir.NormalizeName(name)]
	return a, ok
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Hash returns the content hash of the graph. Two graphs with the same
// activities, roles, relations and initial marking share a hash regardless
// of declaration order.
func (g *Graph) Hash() string { return g.hash }

// Len returns the number of activities.
func (g *Graph) Len() int { return len(g.names) }

// Activities returns all activity names in sorted order.
func (g *Graph) Activities() []string { return slices.Clone(g.names) }

// InitialIncluded returns the activities included in a fresh marking.
func (g *Graph) InitialIncluded() []string { return slices.Clone(g.initialIncluded) }

// InitialPending returns the activities pending in a fresh marking.
func (g *Graph) InitialPending() []string { return slices.Clone(g.initialPending) }

// InitialExecuted returns the activities executed in a fresh marking.
func (g *Graph) InitialExecuted() []string { return slices.Clone(g.initialExecuted) }

// HasMilestones reports whether any activity references a milestone.
func (g *Graph) HasMilestones() bool {
	for _, a := range g.activities {
		if len(a.Milestones) > 0 {
			return true
		}
	}
	return false
}

// Describe returns the canonical description hashed by Hash. The value is
// accepted by ir.MarshalCanonical.
func (g *Graph) Describe() map[string]any {
	activities := make(map[string]any, len(g.activities))
	for name, a := range g.activities {
		activities[name] = map[string]any{
			"role":      a.Role,
			"condition": a.Conditions,
			"response":  a.Responses,
			"exclude":   a.Excludes,
			"include":   a.Includes,
			"milestone": a.Milestones,
		}
	}
	return map[string]any{
		"name":       g.name,
		"activities": activities,
		"included":   g.initialIncluded,
		"pending":    g.initialPending,
		"executed":   g.initialExecuted,
	}
}

func sortedUnique(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}
