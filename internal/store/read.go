package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/wrecker/internal/history"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is the runs-table view of a run, without its history.
type RunSummary struct {
	ID          string
	Name        string
	Nodes       []string
	StartedAt   time.Time
	Duration    time.Duration
	Valid       *bool
	Fingerprint string
	Ops         int
}

// GetRun loads one run's summary. Returns ErrRunNotFound if the id is
// unknown.
func (s *Store) GetRun(ctx context.Context, id string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.name, r.nodes, r.started_at, r.duration_ns, r.valid, r.fingerprint,
		       (SELECT COUNT(*) FROM ops o WHERE o.run_id = r.id)
		FROM runs r
		WHERE r.id = ?
	`, id)

	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return RunSummary{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return summary, nil
}

// ListRuns returns every stored run, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.nodes, r.started_at, r.duration_ns, r.valid, r.fingerprint,
		       (SELECT COUNT(*) FROM ops o WHERE o.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// LoadHistory reconstructs a run's history in time order, idx breaking
// ties, matching the snapshot that was saved: idx is append order, and
// an op's time is stamped before it reaches the log, so a lower idx can
// carry a later time. Op values come back as generic JSON trees
// (json.Number for numbers), not the concrete types the clients
// produced; checkers that need structure re-interpret them.
func (s *Store) LoadHistory(ctx context.Context, runID string) (history.History, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, process, type, f, value, error, time_ns
		FROM ops
		WHERE run_id = ?
		ORDER BY time_ns ASC, idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", runID, err)
	}
	defer rows.Close()

	var h history.History
	for rows.Next() {
		var (
			op     history.Op
			typ    string
			value  sql.NullString
			opErr  sql.NullString
			timeNs int64
		)
		if err := rows.Scan(&op.Index, &op.Process, &typ, &op.F, &value, &opErr, &timeNs); err != nil {
			return nil, fmt.Errorf("load history %s: scan: %w", runID, err)
		}
		op.Type = history.Type(typ)
		op.Time = time.Duration(timeNs)
		if opErr.Valid {
			op.Error = opErr.String
		}
		if value.Valid {
			dec := json.NewDecoder(bytes.NewReader([]byte(value.String)))
			dec.UseNumber()
			if err := dec.Decode(&op.Value); err != nil {
				return nil, fmt.Errorf("load history %s: decode op %d value: %w", runID, op.Index, err)
			}
		}
		h = append(h, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history %s: %w", runID, err)
	}
	return h, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (RunSummary, error) {
	var (
		summary    RunSummary
		nodesJSON  string
		startedAt  string
		durationNs int64
		valid      sql.NullBool
	)
	if err := row.Scan(&summary.ID, &summary.Name, &nodesJSON, &startedAt,
		&durationNs, &valid, &summary.Fingerprint, &summary.Ops); err != nil {
		return RunSummary{}, err
	}

	if err := json.Unmarshal([]byte(nodesJSON), &summary.Nodes); err != nil {
		return RunSummary{}, fmt.Errorf("decode nodes: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return RunSummary{}, fmt.Errorf("parse started_at: %w", err)
	}
	summary.StartedAt = t
	summary.Duration = time.Duration(durationNs)
	if valid.Valid {
		v := valid.Bool
		summary.Valid = &v
	}
	return summary, nil
}
