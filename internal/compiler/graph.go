package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
)

// activityFields lists the fields accepted inside an activity struct.
var activityFields = []string{
	"role", "included", "pending", "executed",
	"condition", "response", "exclude", "include", "milestone",
}

// CompileGraph parses a CUE value into a graph Definition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the graph struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`graph: loan: { activity: Submit: { response: ["Review"] } ... }`)
//	def, err := CompileGraph(v.LookupPath(cue.ParsePath("graph.loan")))
//
// Relation lists are read from the point of view of the activity that
// declares them:
//
//	condition: [B]   B must fire before this activity
//	response:  [B]   firing this activity makes B pending
//	exclude:   [B]   firing this activity excludes B
//	include:   [B]   firing this activity includes B
//	milestone: [B]   this activity is blocked while B is pending
//
// included defaults to true; pending and executed default to false.
func CompileGraph(v cue.Value) (*dcr.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &dcr.Definition{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = labels[len(labels)-1].String()
	}

	actVal := v.LookupPath(cue.ParsePath("activity"))
	if !actVal.Exists() {
		return nil, &CompileError{
			Field:   "activity",
			Message: "at least one activity is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := actVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		ad, rels, err := parseActivity(name, iter.Value())
		if err != nil {
			return nil, err
		}
		def.Activities = append(def.Activities, ad)
		def.Relations = append(def.Relations, rels...)
	}

	if len(def.Activities) == 0 {
		return nil, &CompileError{
			Field:   "activity",
			Message: "at least one activity is required",
			Pos:     actVal.Pos(),
		}
	}

	return def, nil
}

// parseActivity extracts one activity and the relations it declares.
func parseActivity(name string, v cue.Value) (dcr.ActivityDef, []dcr.RelationDef, error) {
	ad := dcr.ActivityDef{Name: name, Included: true}
	var rels []dcr.RelationDef

	fields, err := v.Fields()
	if err != nil {
		return ad, nil, formatCUEError(err)
	}
	for fields.Next() {
		label := fields.Label()
		if !slices.Contains(activityFields, label) {
			return ad, nil, &CompileError{
				Field:   fmt.Sprintf("activity.%s.%s", name, label),
				Message: "unknown activity field",
				Pos:     fields.Value().Pos(),
			}
		}
	}

	if roleVal := v.LookupPath(cue.ParsePath("role")); roleVal.Exists() {
		role, err := roleVal.String()
		if err != nil {
			return ad, nil, formatCUEError(err)
		}
		ad.Role = role
	}

	for _, flag := range []struct {
		field string
		dst   *bool
	}{
		{"included", &ad.Included},
		{"pending", &ad.Pending},
		{"executed", &ad.Executed},
	} {
		fv := v.LookupPath(cue.ParsePath(flag.field))
		if !fv.Exists() {
			continue
		}
		b, err := fv.Bool()
		if err != nil {
			return ad, nil, formatCUEError(err)
		}
		*flag.dst = b
	}

	for _, kind := range dcr.RelationKinds {
		targets, err := parseNameList(v.LookupPath(cue.MakePath(cue.Str(string(kind)))))
		if err != nil {
			return ad, nil, err
		}
		for _, other := range targets {
			switch kind {
			case dcr.Condition, dcr.Milestone:
				// stored on the constrained activity: other → name
				rels = append(rels, dcr.RelationDef{Kind: kind, From: other, To: name})
			default:
				rels = append(rels, dcr.RelationDef{Kind: kind, From: name, To: other})
			}
		}
	}

	return ad, rels, nil
}

// parseNameList reads an optional list of activity names.
func parseNameList(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var names []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		names = append(names, s)
	}
	return names, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
