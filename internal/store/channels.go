package store

import (
	"context"
	"database/sql"

	"github.com/cklxx/taskctl/pkg/types"
)

// AddContextEntry appends a shared-visibility update on a task (share,
// discover, or sync): the context_entries row commits first, then the
// entry is appended to the task's contexts/<task>.log file. The channel
// file write always follows the store transaction, never runs inside it.
func (s *Store) AddContextEntry(ctx context.Context, e types.ContextEntry) (types.ContextEntry, error) {
	clean, err := sanitizeChannelText(e.Text)
	if err != nil {
		return types.ContextEntry{}, err
	}
	e.Text = clean
	e.CreatedAt = nowUTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO context_entries (task_id, agent_id, kind, text, created_at) VALUES (?, ?, ?, ?, ?)`,
			e.TaskID, e.AgentID, e.Kind, e.Text, fmtTime(e.CreatedAt))
		if err != nil {
			return err
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}
		e.Seq = seq
		return nil
	})
	if err != nil {
		return types.ContextEntry{}, err
	}
	if err := appendChannelLine(s.contextLogPath(e.TaskID), channelLogLine(e.CreatedAt, e.AgentID, string(e.Kind), e.Text)); err != nil {
		return e, err
	}
	return e, nil
}

// ContextEntries returns the shared context stream for a task, oldest first.
func (s *Store) ContextEntries(ctx context.Context, taskID string) ([]types.ContextEntry, error) {
	var out []types.ContextEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT seq, task_id, agent_id, kind, text, created_at FROM context_entries WHERE task_id=? ORDER BY seq ASC`,
			taskID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e types.ContextEntry
			var createdAt string
			if err := rows.Scan(&e.Seq, &e.TaskID, &e.AgentID, &e.Kind, &e.Text, &createdAt); err != nil {
				return err
			}
			e.CreatedAt = parseTime(createdAt)
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// AddPrivateNote appends a single-reader scratch note, visible only to the
// authoring agent, to both
// the private_notes row and the agent's notes/<task>_<agent>.log file.
func (s *Store) AddPrivateNote(ctx context.Context, n types.PrivateNote) error {
	clean, err := sanitizeChannelText(n.Text)
	if err != nil {
		return err
	}
	n.Text = clean
	n.CreatedAt = nowUTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO private_notes (task_id, agent_id, text, created_at) VALUES (?, ?, ?, ?)`,
			n.TaskID, n.AgentID, n.Text, fmtTime(n.CreatedAt))
		return err
	})
	if err != nil {
		return err
	}
	return appendChannelLine(s.noteLogPath(n.TaskID, n.AgentID), channelLogLine(n.CreatedAt, n.AgentID, "note", n.Text))
}

// PrivateNotes returns an agent's own notes on a task, oldest first. Notes
// belonging to other agents are never returned: there is no query here that
// accepts a different agentID than the caller's own.
func (s *Store) PrivateNotes(ctx context.Context, taskID, agentID string) ([]types.PrivateNote, error) {
	var out []types.PrivateNote
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT task_id, agent_id, text, created_at FROM private_notes WHERE task_id=? AND agent_id=? ORDER BY id ASC`,
			taskID, agentID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n types.PrivateNote
			var createdAt string
			if err := rows.Scan(&n.TaskID, &n.AgentID, &n.Text, &createdAt); err != nil {
				return err
			}
			n.CreatedAt = parseTime(createdAt)
			out = append(out, n)
		}
		return rows.Err()
	})
	return out, err
}
