// Package store provides SQLite-backed storage for cached conformance
// verdicts and run history.
//
// Two tables:
//   - verdicts: latest report per (graph name, policy), reused only while the
//     graph hash and the log hash both still match
//   - runs: append-only history of every check, ordered by seq
//
// Ordering uses the seq INTEGER column, never wall-clock timestamps. Queries
// that return lists always carry an ORDER BY so results are identical across
// runs.
//
// The report column is an opaque blob. The store never looks inside it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
