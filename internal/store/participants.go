package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cklxx/taskctl/pkg/types"
)

// Join records an agent as a participant of a task, idempotently.
func (s *Store) Join(ctx context.Context, taskID, agentID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTaskTx(ctx, tx, taskID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO participants (task_id, agent_id, joined_at) VALUES (?, ?, ?)`,
			taskID, agentID, fmtTime(time.Now()))
		return err
	})
}

// IsParticipant reports whether agentID has joined taskID, used by the
// context-channel read path: a reader sees shared context
// iff it is a participant of the task.
func (s *Store) IsParticipant(ctx context.Context, taskID, agentID string) (bool, error) {
	var ok bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE task_id=? AND agent_id=?`, taskID, agentID)
		if err := row.Scan(&count); err != nil {
			return err
		}
		ok = count > 0
		return nil
	})
	return ok, err
}

// Participants lists the agents that have joined a task.
func (s *Store) Participants(ctx context.Context, taskID string) ([]types.Participant, error) {
	var out []types.Participant
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT task_id, agent_id, joined_at FROM participants WHERE task_id=? ORDER BY joined_at ASC`, taskID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p types.Participant
			var joinedAt string
			if err := rows.Scan(&p.TaskID, &p.AgentID, &joinedAt); err != nil {
				return err
			}
			p.JoinedAt = parseTime(joinedAt)
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}
