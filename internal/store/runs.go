package store

import (
	"context"
	"fmt"
)

// Run is one row of run history.
type Run struct {
	Seq        int64
	ID         string
	GraphName  string
	GraphHash  string
	LogHash    string
	Policy     string
	Mode       string
	Workers    int
	Traces     int
	Violating  int
	DurationMS int64
	// Cached is true when the report was served from the verdict cache
	// instead of a replay.
	Cached bool
}

// RecordRun appends r to the run history and returns its assigned seq.
// The Seq field of r is ignored.
func (s *Store) RecordRun(ctx context.Context, r Run) (int64, error) {
	cached := 0
	if r.Cached {
		cached = 1
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, graph_name, graph_hash, log_hash, policy, mode, workers, traces, violating, duration_ms, cached)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.GraphName,
		r.GraphHash,
		r.LogHash,
		r.Policy,
		r.Mode,
		r.Workers,
		r.Traces,
		r.Violating,
		r.DurationMS,
		cached,
	)
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return seq, nil
}

// ListRuns returns run history in seq order. An empty graphName lists runs
// of every graph.
func (s *Store) ListRuns(ctx context.Context, graphName string) ([]Run, error) {
	query := `
		SELECT seq, id, graph_name, graph_hash, log_hash, policy, mode, workers, traces, violating, duration_ms, cached
		FROM runs
	`
	var args []any
	if graphName != "" {
		query += ` WHERE graph_name = ?`
		args = append(args, graphName)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var cached int
		if err := rows.Scan(
			&r.Seq, &r.ID, &r.GraphName, &r.GraphHash, &r.LogHash, &r.Policy,
			&r.Mode, &r.Workers, &r.Traces, &r.Violating, &r.DurationMS, &cached,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Cached = cached == 1
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
