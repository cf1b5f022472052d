// Package eventlog reads, writes and filters event logs.
//
// Logs are YAML (the default) or JSON documents:
//
//	name: loan-log
//	traces:
//	  - id: case-1
//	    events:
//	      - {activity: Submit, role: Customer, timestamp: "2024-01-02T10:00:00Z"}
//
// Decoding is strict: unknown fields are rejected so typos surface as errors
// instead of silently empty roles. A trace without an id gets its 1-based
// position; an event without a role falls back to its resource.
package eventlog
