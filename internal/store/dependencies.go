package store

import (
	"context"
	"database/sql"

	"github.com/cklxx/taskctl/internal/graph"
	"github.com/cklxx/taskctl/pkg/errs"
	"github.com/cklxx/taskctl/pkg/types"
)

// loadEdges reads the full dependency adjacency (task_id -> depends_on ids)
// within tx, so cycle detection sees a consistent snapshot with the insert
// that follows it in the same transaction.
func loadEdges(ctx context.Context, tx *sql.Tx) (map[string][]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT task_id, depends_on FROM dependencies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	edges := make(map[string][]string)
	for rows.Next() {
		var taskID, dep string
		if err := rows.Scan(&taskID, &dep); err != nil {
			return nil, err
		}
		edges[taskID] = append(edges[taskID], dep)
	}
	return edges, rows.Err()
}

func insertEdgeChecked(ctx context.Context, tx *sql.Tx, edges map[string][]string, taskID, dependsOn string) error {
	if graph.WouldCycle(edges, taskID, dependsOn) {
		return &errs.CycleError{From: taskID, To: dependsOn}
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO dependencies (task_id, depends_on) VALUES (?, ?)`,
		taskID, dependsOn)
	return err
}

// AddDependency adds a single depends_on edge to an existing task, rejecting
// it if it would create a cycle. If dependsOn is not yet completed, taskID
// transitions to blocked — "blocked iff at least one incomplete
// dependency" holds for edges added after creation too, not only
// at insert time.
func (s *Store) AddDependency(ctx context.Context, taskID, dependsOn string, audit AuditEntry) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		dep, err := getTaskTx(ctx, tx, dependsOn)
		if err != nil {
			return err
		}
		edges, err := loadEdges(ctx, tx)
		if err != nil {
			return err
		}
		if err := insertEdgeChecked(ctx, tx, edges, taskID, dependsOn); err != nil {
			return err
		}
		if dep.Status != types.StatusCompleted && t.Status != types.StatusCompleted && t.Status != types.StatusBlocked {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`,
				types.StatusBlocked, nowRFC3339(), taskID); err != nil {
				return err
			}
		}
		return writeAudit(ctx, tx, audit)
	})
	if err == nil {
		s.invalidate(taskID)
	}
	return err
}

// dependentsOf returns direct dependents ordered by created_at then id, the
// order cascade-unblock notifications must be emitted in.
func dependentsOf(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT d.task_id FROM dependencies d JOIN tasks t ON t.id = d.task_id
		 WHERE d.depends_on=? ORDER BY t.created_at ASC, t.id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DependsOn returns the direct dependency ids of a task.
func (s *Store) DependsOn(ctx context.Context, taskID string) ([]string, error) {
	var out []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT depends_on FROM dependencies WHERE task_id=?`, taskID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	return out, err
}

// Dependents returns the direct dependent ids (tasks that depend on taskID).
func (s *Store) Dependents(ctx context.Context, taskID string) ([]string, error) {
	var out []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = dependentsOf(ctx, tx, taskID)
		return err
	})
	return out, err
}

// CriticalPath returns the longest-weight dependency chain ending at
// rootID, weighted by estimated_hours (missing estimates count
// as 1), and its total. Ties are broken by priority (higher wins) then id.
func (s *Store) CriticalPath(ctx context.Context, rootID string) ([]string, float64, error) {
	var path []string
	var total float64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTaskTx(ctx, tx, rootID); err != nil {
			return err
		}
		edges, err := loadEdges(ctx, tx)
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `SELECT id, estimated_hours, priority FROM tasks`)
		if err != nil {
			return err
		}
		defer rows.Close()
		hours := make(map[string]float64)
		priorities := make(map[string]types.Priority)
		for rows.Next() {
			var id, priority string
			var est sql.NullFloat64
			if err := rows.Scan(&id, &est, &priority); err != nil {
				return err
			}
			if est.Valid {
				hours[id] = est.Float64
			}
			priorities[id] = types.Priority(priority)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rank := func(id string) (int, bool) {
			p, ok := priorities[id]
			if !ok {
				return 0, false
			}
			return p.Weight(), true
		}
		path, total = graph.CriticalPath(rootID, edges, hours, rank)
		reverse(path)
		return nil
	})
	return path, total, err
}

// reverse flips path in place so CriticalPath returns the chain ordered from
// its earliest dependency to rootID, matching how a caller reads a timeline.
func reverse(path []string) {
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
}

// CompleteAndUnblock marks a task completed, then returns the subset of its
// direct dependents whose dependencies are now all completed. The cascade
// is computed inside the same transaction as the
// completion so no concurrent writer can observe a half-applied cascade.
func (s *Store) CompleteAndUnblock(ctx context.Context, taskID string, mutate func(*types.Task), audit AuditEntry) (types.Task, []string, error) {
	var completed types.Task
	var unblocked []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t.Status == types.StatusCompleted {
			return &errs.ConflictError{Reason: "task already completed"}
		}
		mutate(&t)
		t.Status = types.StatusCompleted
		t.UpdatedAt = nowUTC()
		t.Version++
		if err := updateTaskRow(ctx, tx, t); err != nil {
			return err
		}
		completed = t

		dependents, err := dependentsOf(ctx, tx, taskID)
		if err != nil {
			return err
		}
		done := map[string]bool{taskID: true}
		depsOf := make(map[string][]string, len(dependents))
		for _, d := range dependents {
			deps, err := func() ([]string, error) {
				rows, err := tx.QueryContext(ctx, `SELECT depends_on FROM dependencies WHERE task_id=?`, d)
				if err != nil {
					return nil, err
				}
				defer rows.Close()
				var ids []string
				for rows.Next() {
					var id string
					if err := rows.Scan(&id); err != nil {
						return nil, err
					}
					ids = append(ids, id)
				}
				return ids, rows.Err()
			}()
			if err != nil {
				return err
			}
			depsOf[d] = deps
			for _, dep := range deps {
				if dep == taskID {
					continue
				}
				row := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id=?`, dep)
				var status string
				if err := row.Scan(&status); err == nil && status == string(types.StatusCompleted) {
					done[dep] = true
				}
			}
		}
		ready := graph.Unblocked(dependents, depsOf, done)
		for _, id := range ready {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status=? WHERE id=? AND status=?`,
				types.StatusPending, id, types.StatusBlocked); err != nil {
				return err
			}
		}
		unblocked = ready
		return writeAudit(ctx, tx, audit)
	})
	if err == nil {
		s.invalidate(taskID)
		for _, id := range unblocked {
			s.invalidate(id)
		}
	}
	return completed, unblocked, err
}
