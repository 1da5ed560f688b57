package store

import (
	"context"
	"database/sql"

	"github.com/cklxx/taskctl/internal/idgen"
	"github.com/cklxx/taskctl/pkg/types"
)

// Notify inserts a notification row and appends it to
// notifications/broadcast.log, for both targeted and broadcast
// notifications. TargetAgent == "" means broadcast.
func (s *Store) Notify(ctx context.Context, n types.Notification) (types.Notification, error) {
	clean, err := sanitizeChannelText(n.Payload)
	if err != nil {
		return types.Notification{}, err
	}
	n.Payload = clean
	n.CreatedAt = nowUTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := idgen.Unique(func(candidate string) (bool, error) {
			var exists bool
			row := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM notifications WHERE id=?)`, candidate)
			if err := row.Scan(&exists); err != nil {
				return false, err
			}
			return exists, nil
		})
		if err != nil {
			return err
		}
		n.ID = id
		_, err = tx.ExecContext(ctx,
			`INSERT INTO notifications (id, task_id, kind, target_agent, payload, created_at, acknowledged)
			 VALUES (?, ?, ?, ?, ?, ?, 0)`,
			n.ID, n.TaskID, n.Kind, n.TargetAgent, n.Payload, fmtTime(n.CreatedAt))
		return err
	})
	if err != nil {
		return types.Notification{}, err
	}
	if err := appendChannelLine(s.broadcastLogPath(), channelLogLine(n.CreatedAt, n.TargetAgent, string(n.Kind), n.Payload)); err != nil {
		return n, err
	}
	return n, nil
}

// Inbox returns unacknowledged notifications addressed to agentID plus every
// unacknowledged broadcast, oldest first.
func (s *Store) Inbox(ctx context.Context, agentID string) ([]types.Notification, error) {
	var out []types.Notification
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, task_id, kind, target_agent, payload, created_at, acknowledged
			FROM notifications
			WHERE acknowledged = 0 AND (target_agent = ? OR target_agent = '')
			ORDER BY created_at ASC, id ASC`, agentID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return rows.Err()
	})
	return out, err
}

func scanNotification(rows *sql.Rows) (types.Notification, error) {
	var n types.Notification
	var taskID sql.NullString
	var createdAt string
	var ack int
	err := rows.Scan(&n.ID, &taskID, &n.Kind, &n.TargetAgent, &n.Payload, &createdAt, &ack)
	if err != nil {
		return types.Notification{}, err
	}
	n.TaskID = taskID.String
	n.CreatedAt = parseTime(createdAt)
	n.Acknowledged = ack != 0
	return n, nil
}

// Acknowledge marks a notification as read.
func (s *Store) Acknowledge(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE notifications SET acknowledged=1 WHERE id=?`, id)
		return err
	})
}
