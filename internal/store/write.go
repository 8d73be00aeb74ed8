package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/wrecker/internal/history"
)

// Run is a finished test run ready for persistence: identity, verdict,
// and the complete recorded history.
type Run struct {
	ID        string
	Name      string
	Nodes     []string
	StartedAt time.Time
	Duration  time.Duration

	// Valid is nil when no checker ran.
	Valid   *bool
	Details map[string]any

	History history.History
}

// SaveRun persists a run and its entire history in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - saving the same run
// twice is a no-op, and a partially written run never becomes visible.
//
// Op values and checker details are serialized to canonical JSON so that
// identical runs produce byte-identical rows.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("save run: empty run id")
	}

	nodesJSON, err := history.CanonicalJSON(run.Nodes)
	if err != nil {
		return fmt.Errorf("save run %s: marshal nodes: %w", run.ID, err)
	}

	fingerprint, err := history.Fingerprint(run.History)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	var details sql.NullString
	if run.Details != nil {
		data, err := history.CanonicalJSON(run.Details)
		if err != nil {
			return fmt.Errorf("save run %s: marshal details: %w", run.ID, err)
		}
		details = sql.NullString{String: string(data), Valid: true}
	}

	var valid sql.NullBool
	if run.Valid != nil {
		valid = sql.NullBool{Bool: *run.Valid, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run %s: begin tx: %w", run.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, name, nodes, started_at, duration_ns, valid, details, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Name,
		string(nodesJSON),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Duration.Nanoseconds(),
		valid,
		details,
		fingerprint,
	)
	if err != nil {
		return fmt.Errorf("save run %s: insert run: %w", run.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save run %s: rows affected: %w", run.ID, err)
	}
	if rowsAffected == 0 {
		// Run already saved; the history is immutable, so there is
		// nothing to update.
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ops
		(run_id, idx, process, type, f, value, error, time_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save run %s: prepare ops: %w", run.ID, err)
	}
	defer stmt.Close()

	for _, op := range run.History {
		var value sql.NullString
		if op.Value != nil {
			data, err := history.CanonicalJSON(op.Value)
			if err != nil {
				return fmt.Errorf("save run %s: marshal op %d value: %w", run.ID, op.Index, err)
			}
			value = sql.NullString{String: string(data), Valid: true}
		}

		var opErr sql.NullString
		if op.Error != "" {
			opErr = sql.NullString{String: op.Error, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			run.ID,
			op.Index,
			op.Process,
			string(op.Type),
			op.F,
			value,
			opErr,
			op.Time.Nanoseconds(),
		); err != nil {
			return fmt.Errorf("save run %s: insert op %d: %w", run.ID, op.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save run %s: commit: %w", run.ID, err)
	}

	return nil
}
