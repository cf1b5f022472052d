package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sebastiandunzer/dcr-log-filter/internal/dcr"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// General validation errors (E200)
	ErrUnsupportedType = "E200" // unsupported type for validation

	// Graph errors (E201-E209)
	ErrGraphNoActivities     = "E201" // at least one activity required
	ErrActivityNameEmpty     = "E202" // activity name is empty
	ErrDuplicateActivity     = "E203" // activity declared twice
	ErrUnknownRelationKind   = "E204" // relation kind not recognised
	ErrUndeclaredActivityRef = "E205" // relation endpoint not declared
	ErrInvalidGraphName      = "E206" // graph name not usable as identifier
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a graph definition against schema rules.
// Returns all errors found (does not fail-fast), unlike dcr.New which stops
// at the first problem.
func Validate(v any) []ValidationError {
	switch def := v.(type) {
	case *dcr.Definition:
		return validateDefinition(def)
	case dcr.Definition:
		return validateDefinition(&def)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

var graphNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func validateDefinition(def *dcr.Definition) []ValidationError {
	var errs []ValidationError

	// E206: graph name doubles as cache key and --graph value
	if !graphNamePattern.MatchString(def.Name) {
		errs = append(errs, ValidationError{
			Field:   "graph",
			Message: fmt.Sprintf("graph name %q must match %s", def.Name, graphNamePattern),
			Code:    ErrInvalidGraphName,
		})
	}

	// E201
	if len(def.Activities) == 0 {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("graph.%s.activity", def.Name),
			Message: "at least one activity is required",
			Code:    ErrGraphNoActivities,
		})
	}

	declared := make(map[string]bool, len(def.Activities))
	for i, ad := range def.Activities {
		name := ir.NormalizeName(ad.Name)
		// E202
		if name == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("activity[%d]", i),
				Message: "activity name is required and must be non-empty",
				Code:    ErrActivityNameEmpty,
			})
			continue
		}
		// E203
		if declared[name] {
			errs = append(errs, ValidationError{
				Field:   "activity." + name,
				Message: "activity declared more than once",
				Code:    ErrDuplicateActivity,
			})
		}
		declared[name] = true
	}

	for i, rd := range def.Relations {
		field := fmt.Sprintf("relation[%d]", i)
		// E204
		if !rd.Kind.Valid() {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown relation kind %q", rd.Kind),
				Code:    ErrUnknownRelationKind,
			})
		}
		// E205
		for _, end := range []string{rd.From, rd.To} {
			if !declared[ir.NormalizeName(end)] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("%s relation %s -> %s references undeclared activity %q", rd.Kind, rd.From, rd.To, strings.TrimSpace(end)),
					Code:    ErrUndeclaredActivityRef,
				})
			}
		}
	}

	return errs
}
