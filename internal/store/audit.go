package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// AuditEntry is the append-only record written with every mutation.
type AuditEntry struct {
	ID      string
	Op      string
	TaskID  string
	AgentID string
	Outcome string
	Detail  string
}

// writeAudit appends one audit row. It is always called from inside the
// same transaction as the mutation it records, so a crash between the
// mutation and the audit write is impossible — both commit together or
// neither does.
func writeAudit(ctx context.Context, tx *sql.Tx, e AuditEntry) error {
	if e.Op == "" {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (id, op, task_id, agent_id, at, outcome, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Op, nullIfEmpty(e.TaskID), e.AgentID, nowRFC3339(), e.Outcome, e.Detail)
	return err
}

// Audit appends an audit row in its own transaction. Callers that already
// hold one (store's own CRUD methods) should use writeAudit directly instead
// so the record commits atomically with the mutation.
func (s *Store) Audit(ctx context.Context, e AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return writeAudit(ctx, tx, e)
	})
}

// AuditLog returns the audit trail for a task, oldest first.
func (s *Store) AuditLog(ctx context.Context, taskID string) ([]AuditEntry, error) {
	var out []AuditEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, op, task_id, agent_id, outcome, detail FROM audit_log WHERE task_id=? ORDER BY at ASC`, taskID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e AuditEntry
			var tid sql.NullString
			if err := rows.Scan(&e.ID, &e.Op, &tid, &e.AgentID, &e.Outcome, &e.Detail); err != nil {
				return err
			}
			e.TaskID = tid.String
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// HasMultipleAgents reports whether the audit trail already carries actions
// from more than one distinct agent, one of the heuristics
// enforcement.DetectOrchestrationContext weighs to auto-enable strict mode.
func (s *Store) HasMultipleAgents(ctx context.Context) (bool, error) {
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT COUNT(DISTINCT agent_id) FROM audit_log WHERE agent_id != ''`)
		return row.Scan(&count)
	})
	return count > 1, err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
