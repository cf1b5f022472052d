package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/sebastiandunzer/dcr-log-filter/internal/analysis"
	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string               // Assertion type for categorization
	Expected string               // Human-readable expected outcome
	Actual   string               // Human-readable actual outcome
	Records  []ir.ViolationRecord // Records of the trace under test
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Records) > 0 {
		fmt.Fprintf(&buf, "\nRecords:\n")
		for _, rec := range e.Records {
			fmt.Fprintf(&buf, "  %s [%s] violated=%v\n", rec.TraceID, rec.PathKey(), rec.Violated)
			for _, v := range rec.Violations {
				fmt.Fprintf(&buf, "    %s %s @%d\n", v.Kind, v.Activity, v.Position)
			}
		}
	}

	return buf.String()
}

// assertVerdict checks every record of the trace against the expected
// verdict.
func assertVerdict(result *Result, a Assertion) error {
	recs := result.recordsFor(a.Trace)
	if len(recs) == 0 {
		return traceNotFound(AssertVerdict, a.Trace)
	}
	for _, rec := range recs {
		if rec.Violated != *a.Violated {
			return &AssertionError{
				Type:     AssertVerdict,
				Expected: fmt.Sprintf("trace %s violated=%v", a.Trace, *a.Violated),
				Actual:   fmt.Sprintf("violated=%v", rec.Violated),
				Records:  recs,
			}
		}
	}
	return nil
}

// assertViolation checks if the trace carries a violation matching kind
// and the optional activity, related and position fields.
func assertViolation(result *Result, a Assertion) error {
	recs := result.recordsFor(a.Trace)
	if len(recs) == 0 {
		return traceNotFound(AssertViolation, a.Trace)
	}
	for _, rec := range recs {
		for _, v := range rec.Violations {
			if matchViolation(v, a) {
				return nil
			}
		}
	}
	return &AssertionError{
		Type:     AssertViolation,
		Expected: describeViolation(a),
		Actual:   "not found in trace",
		Records:  recs,
	}
}

func matchViolation(v ir.Violation, a Assertion) bool {
	if string(v.Kind) != a.Kind {
		return false
	}
	if a.Activity != "" && v.Activity != ir.NormalizeName(a.Activity) {
		return false
	}
	if a.Related != "" && v.Related != ir.NormalizeName(a.Related) {
		return false
	}
	if a.Position != nil && v.Position != *a.Position {
		return false
	}
	return true
}

func describeViolation(a Assertion) string {
	parts := []string{a.Kind}
	if a.Activity != "" {
		parts = append(parts, "activity="+a.Activity)
	}
	if a.Related != "" {
		parts = append(parts, "related="+a.Related)
	}
	if a.Position != nil {
		parts = append(parts, fmt.Sprintf("position=%d", *a.Position))
	}
	return strings.Join(parts, " ")
}

// assertViolationOrder checks if kinds appear in the specified order.
// Kinds don't need to be consecutive (intervening violations are allowed).
func assertViolationOrder(result *Result, a Assertion) error {
	recs := result.recordsFor(a.Trace)
	if len(recs) == 0 {
		return traceNotFound(AssertViolationOrder, a.Trace)
	}
	rec := recs[0]

	next := 0
	for _, v := range rec.Violations {
		if next < len(a.Kinds) && string(v.Kind) == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}

	return &AssertionError{
		Type:     AssertViolationOrder,
		Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
		Actual:   fmt.Sprintf("missing %s after %v", a.Kinds[next], a.Kinds[:next]),
		Records:  recs,
	}
}

// assertViolationCount checks the exact number of violations, restricted
// to one trace and/or one kind when those are set.
func assertViolationCount(result *Result, a Assertion) error {
	recs := result.Records
	if a.Trace != "" {
		recs = result.recordsFor(a.Trace)
		if len(recs) == 0 {
			return traceNotFound(AssertViolationCount, a.Trace)
		}
	}

	count := 0
	for _, rec := range recs {
		for _, v := range rec.Violations {
			if a.Kind == "" || string(v.Kind) == a.Kind {
				count++
			}
		}
	}

	if count != a.Count {
		what := "violations"
		if a.Kind != "" {
			what = a.Kind + " violations"
		}
		return &AssertionError{
			Type:     AssertViolationCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d", count),
			Records:  recs,
		}
	}
	return nil
}

// assertReport compares the expected fields against the canonical report.
// Values are compared after a JSON round trip so YAML ints, canonical ints
// and ranking lists compare by value.
func assertReport(report analysis.Report, a Assertion) error {
	actual, err := normalize(report.Canonical())
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	actualMap, _ := actual.(map[string]any)

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, key := range keys {
		got, ok := actualMap[key]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: no such report field", key))
			continue
		}
		want, err := normalize(a.Expect[key])
		if err != nil {
			return fmt.Errorf("report: field %s: %w", key, err)
		}
		if !reflect.DeepEqual(got, want) {
			mismatches = append(mismatches, fmt.Sprintf("%s: expected %v, got %v", key, want, got))
		}
	}

	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertReport,
			Expected: fmt.Sprintf("report fields %v", keys),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

// normalize maps v onto the types encoding/json decodes into.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func traceNotFound(kind, traceID string) error {
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("trace %s in log", traceID),
		Actual:   "no record for trace",
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertVerdict:
			if assertion.Violated == nil {
				err = fmt.Errorf("assertion[%d]: verdict requires violated", i)
			} else {
				err = assertVerdict(result, assertion)
			}
		case AssertViolation:
			err = assertViolation(result, assertion)
		case AssertViolationOrder:
			err = assertViolationOrder(result, assertion)
		case AssertViolationCount:
			err = assertViolationCount(result, assertion)
		case AssertReport:
			err = assertReport(result.Report, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
