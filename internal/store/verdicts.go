package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Verdict is a cached report for one graph under one policy and
// strictness. Strict runs abort on undeclared activities, so their verdicts
// never stand in for lenient ones or the other way round.
type Verdict struct {
	GraphName string
	Policy    string
	Strict    bool
	GraphHash string
	LogHash   string
	RunID     string
	Traces    int
	Violating int
	Report    []byte
}

// Valid reports whether the verdict was computed for exactly this graph and
// log content.
func (v Verdict) Valid(graphHash, logHash string) bool {
	return v.GraphHash == graphHash && v.LogHash == logHash
}

// PutVerdicts stores v, replacing any earlier verdict for the same graph
// name, policy and strictness.
func (s *Store) PutVerdicts(ctx context.Context, v Verdict) error {
	if v.GraphName == "" || v.Policy == "" {
		return fmt.Errorf("put verdicts: graph name and policy are required")
	}
	report := v.Report
	if report == nil {
		report = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verdicts
		(graph_name, policy, strict, graph_hash, log_hash, run_id, traces, violating, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(graph_name, policy, strict) DO UPDATE SET
			graph_hash = excluded.graph_hash,
			log_hash   = excluded.log_hash,
			run_id     = excluded.run_id,
			traces     = excluded.traces,
			violating  = excluded.violating,
			report     = excluded.report
	`,
		v.GraphName,
		v.Policy,
		v.Strict,
		v.GraphHash,
		v.LogHash,
		v.RunID,
		v.Traces,
		v.Violating,
		string(report),
	)
	if err != nil {
		return fmt.Errorf("put verdicts: %w", err)
	}
	return nil
}

// GetVerdicts returns the cached verdict for a graph, policy and
// strictness. Returns sql.ErrNoRows if not found.
func (s *Store) GetVerdicts(ctx context.Context, graphName, policy string, strict bool) (Verdict, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT graph_name, policy, strict, graph_hash, log_hash, run_id, traces, violating, report
		FROM verdicts
		WHERE graph_name = ? AND policy = ? AND strict = ?
	`, graphName, policy, strict)

	return scanVerdict(row)
}

// ListVerdicts returns every cached verdict ordered by graph name, policy,
// then lenient before strict.
func (s *Store) ListVerdicts(ctx context.Context) ([]Verdict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT graph_name, policy, strict, graph_hash, log_hash, run_id, traces, violating, report
		FROM verdicts
		ORDER BY graph_name COLLATE BINARY ASC, policy COLLATE BINARY ASC, strict ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	verdicts := []Verdict{}
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return verdicts, nil
}

// DropVerdicts removes every cached verdict for a graph, under any policy
// or strictness, and returns how many rows were deleted. Run history is kept.
func (s *Store) DropVerdicts(ctx context.Context, graphName string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verdicts WHERE graph_name = ?`, graphName)
	if err != nil {
		return 0, fmt.Errorf("drop verdicts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("drop verdicts: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerdict(row rowScanner) (Verdict, error) {
	var v Verdict
	var report string
	if err := row.Scan(
		&v.GraphName, &v.Policy, &v.Strict, &v.GraphHash, &v.LogHash,
		&v.RunID, &v.Traces, &v.Violating, &report,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Verdict{}, err
		}
		return Verdict{}, fmt.Errorf("scan verdict: %w", err)
	}
	v.Report = []byte(report)
	return v, nil
}
