package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cklxx/taskctl/pkg/errs"
	"github.com/cklxx/taskctl/pkg/types"
)

// AddTask inserts a new task row and its declared dependency edges inside a
// single transaction, rejecting the insert if any edge would create a
// cycle — the dependency graph stays a DAG at all times. audit is written
// in the same transaction so the row and its audit entry commit together.
func (s *Store) AddTask(ctx context.Context, t types.Task, dependsOn []string, audit AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertTask(ctx, tx, t); err != nil {
			return err
		}
		edges, err := loadEdges(ctx, tx)
		if err != nil {
			return err
		}
		for _, dep := range dependsOn {
			if err := insertEdgeChecked(ctx, tx, edges, t.ID, dep); err != nil {
				return err
			}
			edges[t.ID] = append(edges[t.ID], dep)
		}
		return writeAudit(ctx, tx, audit)
	})
}

// TaskWithEdges is one task plus the dependency ids it should be inserted
// with, used by AddTasks to instantiate a whole template in one commit.
type TaskWithEdges struct {
	Task      types.Task
	DependsOn []string
}

// AddTasks inserts every task and its edges inside a single transaction:
// either the whole batch commits or none of it does. This is what backs
// template instantiation's all-or-nothing guarantee — AddTask
// alone only guarantees atomicity per task, not across a batch.
func (s *Store) AddTasks(ctx context.Context, batch []TaskWithEdges, audit AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, item := range batch {
			if err := insertTask(ctx, tx, item.Task); err != nil {
				return err
			}
		}
		edges, err := loadEdges(ctx, tx)
		if err != nil {
			return err
		}
		for _, item := range batch {
			for _, dep := range item.DependsOn {
				if err := insertEdgeChecked(ctx, tx, edges, item.Task.ID, dep); err != nil {
					return err
				}
				edges[item.Task.ID] = append(edges[item.Task.ID], dep)
			}
		}
		return writeAudit(ctx, tx, audit)
	})
}

func insertTask(ctx context.Context, tx *sql.Tx, t types.Task) error {
	criteria, err := json.Marshal(t.SuccessCriteria)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return err
	}
	// seq is a workspace-wide monotonic insertion counter: rows inserted in
	// the same transaction share created_at, so ordering falls back to it.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, assignee,
			created_by, created_at, updated_at, success_criteria, deadline,
			estimated_hours, feedback_notes, completion_summary, tags, version, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks))`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.Assignee,
		t.CreatedBy, fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt), string(criteria),
		fmtTimePtr(t.Deadline), t.EstimatedHours, t.FeedbackNotes, t.CompletionSummary,
		string(tags), 1)
	return err
}

// UpdateTask applies a mutator to the current row inside a transaction,
// enforcing the optimistic version check (expectVersion == 0 skips it).
func (s *Store) UpdateTask(ctx context.Context, id string, expectVersion int64, mutate func(*types.Task), audit AuditEntry) (types.Task, error) {
	var out types.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTaskTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if expectVersion != 0 && t.Version != expectVersion {
			return &errs.ConflictError{Reason: "task version changed since read"}
		}
		mutate(&t)
		t.Version++
		t.UpdatedAt = time.Now().UTC()
		if err := updateTaskRow(ctx, tx, t); err != nil {
			return err
		}
		out = t
		return writeAudit(ctx, tx, audit)
	})
	if err == nil {
		s.invalidate(id)
	}
	return out, err
}

func updateTaskRow(ctx context.Context, tx *sql.Tx, t types.Task) error {
	criteria, err := json.Marshal(t.SuccessCriteria)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET title=?, description=?, status=?, priority=?, assignee=?,
			updated_at=?, completed_at=?, success_criteria=?, deadline=?,
			estimated_hours=?, actual_hours=?, feedback_quality=?,
			feedback_timeliness=?, feedback_notes=?, completion_summary=?,
			tags=?, version=?
		WHERE id=?`,
		t.Title, t.Description, t.Status, t.Priority, t.Assignee,
		fmtTime(t.UpdatedAt), fmtTimePtr(t.CompletedAt), string(criteria),
		fmtTimePtr(t.Deadline), t.EstimatedHours, t.ActualHours, t.FeedbackQuality,
		t.FeedbackTimeliness, t.FeedbackNotes, t.CompletionSummary, string(tags),
		t.Version, t.ID)
	return err
}

// TaskExists reports whether id is already present, used by callers
// generating a fresh id to retry on collision — 8-hex-character ids are
// short enough that callers check before insert
// rather than rely on the primary key to reject a clash after the fact.
func (s *Store) TaskExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE id=?)`, id)
		return row.Scan(&exists)
	})
	return exists, err
}

// GetTask returns a task, serving from the read-through cache when present.
// Concurrent misses on the same id collapse into a single row load.
func (s *Store) GetTask(ctx context.Context, id string) (types.Task, error) {
	if t, ok := s.cache.Get(id); ok {
		return t, nil
	}
	v, err, _ := s.flight.Do(id, func() (any, error) {
		var out types.Task
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			t, err := getTaskTx(ctx, tx, id)
			if err != nil {
				return err
			}
			out = t
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.cache.Add(id, out)
		return out, nil
	})
	if err != nil {
		return types.Task{}, err
	}
	return v.(types.Task), nil
}

func getTaskTx(ctx context.Context, tx *sql.Tx, id string) (types.Task, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, title, description, status, priority, assignee, created_by,
			created_at, updated_at, completed_at, success_criteria, deadline,
			estimated_hours, actual_hours, feedback_quality, feedback_timeliness,
			feedback_notes, completion_summary, tags, version
		FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return types.Task{}, &errs.NotFoundError{Kind: "task", ID: id}
	}
	return t, err
}

func scanTask(row *sql.Row) (types.Task, error) {
	var t types.Task
	var createdAt, updatedAt string
	var completedAt, deadline sql.NullString
	var criteriaJSON, tagsJSON string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Assignee,
		&t.CreatedBy, &createdAt, &updatedAt, &completedAt, &criteriaJSON, &deadline,
		&t.EstimatedHours, &t.ActualHours, &t.FeedbackQuality, &t.FeedbackTimeliness,
		&t.FeedbackNotes, &t.CompletionSummary, &tagsJSON, &t.Version)
	if err != nil {
		return types.Task{}, err
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	t.CompletedAt = parseTimePtr(completedAt)
	t.Deadline = parseTimePtr(deadline)
	_ = json.Unmarshal([]byte(criteriaJSON), &t.SuccessCriteria)
	_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)
	return t, nil
}

// DeleteTask removes a task, refusing when other tasks still depend on it
// rather than silently orphaning their edges.
func (s *Store) DeleteTask(ctx context.Context, id string, audit AuditEntry) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		dependents, err := dependentsOf(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(dependents) > 0 {
			return &errs.HasDependentsError{TaskID: id, Dependents: dependents}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return &errs.NotFoundError{Kind: "task", ID: id}
		}
		return writeAudit(ctx, tx, audit)
	})
	if err == nil {
		s.invalidate(id)
	}
	return err
}

// List returns tasks matching filter, ordered by priority descending then
// creation time ascending, with the monotonic insertion sequence breaking
// same-timestamp ties. Tag filtering happens in Go (tags
// are stored as a JSON array), so it is applied before Limit rather than
// pushed into the SQL LIMIT clause — otherwise a Tag+Limit combination
// could silently return fewer rows than the store actually has.
//
// filter.Limit == 0 uses the default cap of 100; a negative Limit
// (types.Unbounded) returns every matching row, for callers like Metrics
// that must aggregate over the whole task set rather than a capped page.
func (s *Store) List(ctx context.Context, filter types.Filter) ([]types.Task, error) {
	var out []types.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT id, title, description, status, priority, assignee, created_by,
			created_at, updated_at, completed_at, success_criteria, deadline,
			estimated_hours, actual_hours, feedback_quality, feedback_timeliness,
			feedback_notes, completion_summary, tags, version FROM tasks WHERE 1=1`
		var args []any
		if filter.Status != "" {
			query += " AND status=?"
			args = append(args, filter.Status)
		}
		if filter.Assignee != "" {
			query += " AND assignee=?"
			args = append(args, filter.Assignee)
		}
		if filter.Priority != "" {
			query += " AND priority=?"
			args = append(args, filter.Priority)
		}
		query += ` ORDER BY CASE priority
			WHEN 'critical' THEN 3
			WHEN 'high' THEN 2
			WHEN 'medium' THEN 1
			ELSE 0
		END DESC, created_at ASC, seq ASC`
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		var matched []types.Task
		for rows.Next() {
			t, err := scanTaskRows(rows)
			if err != nil {
				return err
			}
			if filter.Tag != "" && !containsStr(t.Tags, filter.Tag) {
				continue
			}
			if filter.HasDependencies != nil {
				has, err := hasDependenciesTx(ctx, tx, t.ID)
				if err != nil {
					return err
				}
				if has != *filter.HasDependencies {
					continue
				}
			}
			if filter.IsBlocked != nil && (t.Status == types.StatusBlocked) != *filter.IsBlocked {
				continue
			}
			matched = append(matched, t)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		limit := filter.Limit
		if limit == 0 {
			limit = 100
		}
		if limit > 0 && len(matched) > limit {
			matched = matched[:limit]
		}
		out = matched
		return nil
	})
	return out, err
}

func hasDependenciesTx(ctx context.Context, tx *sql.Tx, taskID string) (bool, error) {
	var count int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM dependencies WHERE task_id=?`, taskID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanTaskRows(rows *sql.Rows) (types.Task, error) {
	var t types.Task
	var createdAt, updatedAt string
	var completedAt, deadline sql.NullString
	var criteriaJSON, tagsJSON string
	err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Assignee,
		&t.CreatedBy, &createdAt, &updatedAt, &completedAt, &criteriaJSON, &deadline,
		&t.EstimatedHours, &t.ActualHours, &t.FeedbackQuality, &t.FeedbackTimeliness,
		&t.FeedbackNotes, &t.CompletionSummary, &tagsJSON, &t.Version)
	if err != nil {
		return types.Task{}, err
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	t.CompletedAt = parseTimePtr(completedAt)
	t.Deadline = parseTimePtr(deadline)
	_ = json.Unmarshal([]byte(criteriaJSON), &t.SuccessCriteria)
	_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)
	return t, nil
}

func containsStr(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
