// Package dcr implements DCR (Dynamic Condition Response) graphs and their
// execution semantics.
//
// A Graph is built once from a Definition and never mutated afterwards, so a
// single *Graph is shared by every replay goroutine without locking.
//
// A Marking is the runtime state of one replay: the Executed, Included and
// PendingResponse sets. Markings are NOT safe for concurrent use; each trace
// owns a fresh Marking for the duration of its replay.
//
// # Relations
//
//	Condition(B→A)  A may only fire once B has fired, unless B is excluded
//	Response(A→B)   firing A makes B pending
//	Exclude(A→B)    firing A removes B from Included
//	Include(A→B)    firing A adds B to Included
//	Milestone(B→A)  A may not fire while B is included and pending
//
// Condition and milestone relations are stored on the constrained activity
// (A.Conditions, A.Milestones); response, exclude and include relations are
// stored on the firing activity.
//
// # Transition
//
// An event is checked against the current marking first. If any rule is
// broken the transition is rejected and the marking is left untouched. Only
// an enabled activity updates the marking, and all updates are computed from
// the pre-transition sets so self-referencing relations behave consistently.
package dcr
