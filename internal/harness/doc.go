// Package harness runs conformance scenarios against the replay engine.
//
// A scenario is a YAML file bundling a DCR graph (inline CUE source or a
// path to a .cue file), a small event log, the replay policy and mode, and
// assertions over the outcome:
//
//	name: response_unsatisfied
//	description: A pending response left open fails the trace
//	policy: exhaustive
//	graph: |
//	  graph: g: {
//	    activity: A: response: ["B"]
//	    activity: B: {}
//	  }
//	traces:
//	  - id: t1
//	    events: [A]
//	assertions:
//	  - type: verdict
//	    trace: t1
//	    violated: true
//	  - type: violation
//	    trace: t1
//	    kind: pending_response
//	    activity: B
//
// Run replays the log through engine.Driver exactly as the CLI does, with a
// fixed run ID, and evaluates the assertions against the collected records
// and the summarized report.
//
// # Assertion types
//
//   - verdict: a trace is (or is not) violating
//   - violation: a trace carries a violation matching kind/activity/related/position
//   - violation_order: a trace's violation kinds appear in the given order
//   - violation_count: number of violations, optionally per trace and kind
//   - report: subset match on the canonical report fields
//
// # Golden files
//
// RunWithGolden snapshots records and report as canonical JSON under
// testdata/golden/{scenario}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
