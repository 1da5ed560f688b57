package taskctl

import (
	"context"
	"strings"
	"time"

	"github.com/cklxx/taskctl/internal/enforcement"
	"github.com/cklxx/taskctl/internal/idgen"
	"github.com/cklxx/taskctl/internal/store"
	"github.com/cklxx/taskctl/internal/telemetry"
	"github.com/cklxx/taskctl/pkg/types"
)

// AddInput is the argument set for Add.
type AddInput struct {
	Title           string
	Description     string
	Priority        types.Priority
	Assignee        string
	SuccessCriteria []types.Criterion
	Deadline        *time.Time
	EstimatedHours  *float64
	Tags            []string
	DependsOn       []string
}

// Add creates a new task, running it through the pre_add hook stage and the
// enforcement gate before committing, and notifying the new assignee (if
// any) after commit.
func (e *Engine) Add(ctx context.Context, in AddInput) (types.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return types.Task{}, &InvalidInputError{Field: "title", Reason: "required"}
	}
	if len([]rune(in.Title)) > 500 {
		return types.Task{}, &InvalidInputError{Field: "title", Reason: "must be 500 characters or fewer"}
	}
	for _, r := range in.Title {
		if r < 0x20 && r != '\t' {
			return types.Task{}, &InvalidInputError{Field: "title", Reason: "must not contain control characters"}
		}
	}
	if len([]rune(in.Description)) > 5000 {
		return types.Task{}, &InvalidInputError{Field: "description", Reason: "must be 5000 characters or fewer"}
	}
	if in.Priority == "" {
		in.Priority = types.PriorityMedium
	}
	status := types.StatusPending
	for _, depID := range in.DependsOn {
		dep, err := e.store.GetTask(ctx, depID)
		if err != nil {
			return types.Task{}, err
		}
		if dep.Status != types.StatusCompleted {
			status = types.StatusBlocked
			break
		}
	}

	id, err := idgen.Unique(func(candidate string) (bool, error) { return e.store.TaskExists(ctx, candidate) })
	if err != nil {
		return types.Task{}, err
	}

	t := types.Task{
		ID:              id,
		Title:           in.Title,
		Description:     in.Description,
		Status:          status,
		Priority:        in.Priority,
		Assignee:        in.Assignee,
		CreatedBy:       e.agentID,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
		SuccessCriteria: in.SuccessCriteria,
		Deadline:        in.Deadline,
		EstimatedHours:  in.EstimatedHours,
		Tags:            in.Tags,
		Version:         1,
	}

	var out types.Task
	err = e.withLock(ctx, func(ctx context.Context) error {
		if err := e.hooks.RunPre(ctx, "add", t.ID, e.agentID, map[string]any{"title": t.Title}); err != nil {
			return err
		}
		decision := e.gate.Validate(ctx, enforcement.OperationContext{
			Op: "add", TaskID: t.ID, AgentID: e.agentID,
			Extra: map[string]any{"description": t.Description, "has_criteria": len(t.SuccessCriteria) > 0},
		})
		if err := decision.Err(); err != nil {
			return err
		}
		if err := e.store.AddTask(ctx, t, in.DependsOn,
			store.AuditEntry{Op: "add", TaskID: t.ID, AgentID: e.agentID, Outcome: "ok"}); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return types.Task{}, err
	}

	e.hooks.RunPost(ctx, "add", t.ID, e.agentID, nil)
	_ = e.journal.Write(journalEvent("add", t.ID, e.agentID))
	if t.Assignee != "" {
		_, _ = e.store.Notify(ctx, types.Notification{TaskID: t.ID, Kind: types.NotificationAssigned, TargetAgent: t.Assignee, Payload: "assigned: " + t.Title})
	}
	return out, nil
}

// UpdateInput is the argument set for Update; nil fields leave the current
// value untouched.
type UpdateInput struct {
	Title           *string
	Description     *string
	Priority        *types.Priority
	SuccessCriteria *[]types.Criterion
	Deadline        **time.Time
	EstimatedHours  **float64
	Tags            *[]string
	ExpectVersion   int64
}

// Update mutates a task's editable fields under the enforcement gate and
// pre/post_update hooks.
func (e *Engine) Update(ctx context.Context, taskID string, in UpdateInput) (types.Task, error) {
	var out types.Task
	err := e.withLock(ctx, func(ctx context.Context) error {
		if err := e.hooks.RunPre(ctx, "update", taskID, e.agentID, nil); err != nil {
			return err
		}
		decision := e.gate.Validate(ctx, enforcement.OperationContext{Op: "update", TaskID: taskID, AgentID: e.agentID})
		if err := decision.Err(); err != nil {
			return err
		}
		t, err := e.store.UpdateTask(ctx, taskID, in.ExpectVersion, func(t *types.Task) {
			if in.Title != nil {
				t.Title = *in.Title
			}
			if in.Description != nil {
				t.Description = *in.Description
			}
			if in.Priority != nil {
				t.Priority = *in.Priority
			}
			if in.SuccessCriteria != nil {
				t.SuccessCriteria = *in.SuccessCriteria
			}
			if in.Deadline != nil {
				t.Deadline = *in.Deadline
			}
			if in.EstimatedHours != nil {
				t.EstimatedHours = *in.EstimatedHours
			}
			if in.Tags != nil {
				t.Tags = *in.Tags
			}
		}, store.AuditEntry{Op: "update", TaskID: taskID, AgentID: e.agentID, Outcome: "ok"})
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return types.Task{}, err
	}
	e.hooks.RunPost(ctx, "update", taskID, e.agentID, nil)
	_ = e.journal.Write(journalEvent("update", taskID, e.agentID))
	return out, nil
}

// Delete removes a task, refusing when tasks still depend on it.
func (e *Engine) Delete(ctx context.Context, taskID string) error {
	err := e.withLock(ctx, func(ctx context.Context) error {
		if err := e.hooks.RunPre(ctx, "delete", taskID, e.agentID, nil); err != nil {
			return err
		}
		decision := e.gate.Validate(ctx, enforcement.OperationContext{Op: "delete", TaskID: taskID, AgentID: e.agentID})
		if err := decision.Err(); err != nil {
			return err
		}
		return e.store.DeleteTask(ctx, taskID,
			store.AuditEntry{Op: "delete", TaskID: taskID, AgentID: e.agentID, Outcome: "ok"})
	})
	if err != nil {
		return err
	}
	e.hooks.RunPost(ctx, "delete", taskID, e.agentID, nil)
	_ = e.journal.Write(journalEvent("delete", taskID, e.agentID))
	return nil
}

// Show returns the full aggregate view of a task: itself, its dependency
// ids, and its dependents.
func (e *Engine) Show(ctx context.Context, taskID string) (types.Aggregate, error) {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return types.Aggregate{}, err
	}
	deps, err := e.store.DependsOn(ctx, taskID)
	if err != nil {
		return types.Aggregate{}, err
	}
	dependents, err := e.store.Dependents(ctx, taskID)
	if err != nil {
		return types.Aggregate{}, err
	}
	return types.Aggregate{Task: t, DependsOn: deps, Dependents: dependents}, nil
}

// List returns tasks matching filter.
func (e *Engine) List(ctx context.Context, filter types.Filter) ([]types.Task, error) {
	return e.store.List(ctx, filter)
}

func journalEvent(kind, taskID, agentID string) telemetry.Event {
	return telemetry.Event{Kind: kind, TaskID: taskID, AgentID: agentID}
}
