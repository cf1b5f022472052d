// Package ir provides the shared data types for dcrcheck.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// event-log and violation types usable by the engine, the aggregator and
// the boundary packages without circular dependencies.
//
// Key design constraints:
//   - Activity names are NFC-normalized at every boundary (NormalizeName)
//   - No floats in canonical JSON; ratios are rendered as fixed strings
//   - All JSON tags use snake_case
//   - Replay never reads wall-clock time; Event.Timestamp is informational
package ir
