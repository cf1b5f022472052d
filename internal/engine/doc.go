// Package engine replays event logs against DCR graphs.
//
// ARCHITECTURE:
//
// Checker:
// A Checker replays one trace from the graph's initial marking and returns
// its ir.ViolationRecord. It owns no state between calls, so one Checker is
// shared by every worker of a run.
//
// Driver:
// The Driver fans traces out to workers and fans records back in:
//  1. Traces are scheduled by Mode (Sequential, Parallel pool, Unbounded)
//  2. Each worker builds a fresh marking and replays its trace
//  3. Finished records are sent over a channel to one collector goroutine
//  4. The collector is the only caller of Sink.Append
//  5. Run returns after the workers and the collector have finished
//
// Policy:
// FailFast stops a trace at its first rejected event. Exhaustive records
// every violation in the trace, then checks pending responses at trace end.
// One policy is chosen per run.
//
// Errors:
// Rule violations are data, never errors. RuntimeError is reserved for
// conditions that abort a run: cancellation, a nil graph, and unknown
// activities under WithStrictActivities.
package engine
