// Package analysis aggregates per-trace violation records into a
// conformance report.
//
// The Aggregator is the only shared mutable state of a replay run. It is
// safe for concurrent use, but the engine feeds it from a single collector
// goroutine so that the mutex is never contended by workers.
//
// Summarize is invariant to the order in which records were appended: all
// lists in a Report are sorted and every ranking is ordered by count
// descending, then key ascending.
package analysis
