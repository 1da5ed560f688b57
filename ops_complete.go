package taskctl

import (
	"context"
	"time"

	"github.com/cklxx/taskctl/internal/criteria"
	"github.com/cklxx/taskctl/internal/enforcement"
	"github.com/cklxx/taskctl/internal/store"
	"github.com/cklxx/taskctl/pkg/types"
)

// CompleteInput carries the closing facts recorded alongside a completion.
type CompleteInput struct {
	ActualHours       *float64
	CompletionSummary string
	// Validate, when true, requires every success criterion to pass before
	// completion commits.
	Validate bool
	// ConfirmManual overrides a criterion whose measurable expression is the
	// literal "true" (or empty), which otherwise always requires manual
	// confirmation and blocks completion when Validate is set.
	ConfirmManual bool
}

// Complete marks a task completed, optionally gating on its success
// criteria (every criterion must pass when validation was requested) and
// cascading the unblock to any dependents whose remaining dependencies are
// now satisfied.
func (e *Engine) Complete(ctx context.Context, taskID string, in CompleteInput) (types.Task, []string, error) {
	current, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return types.Task{}, nil, err
	}
	now := time.Now().UTC()
	if in.Validate {
		probe := current
		if in.ActualHours != nil {
			probe.ActualHours = in.ActualHours
		}
		probe.CompletedAt = &now
		if err := criteria.RequireAllPass(probe, in.ConfirmManual); err != nil {
			return types.Task{}, nil, err
		}
	}

	var completed types.Task
	var unblocked []string
	err = e.withLock(ctx, func(ctx context.Context) error {
		if err := e.hooks.RunPre(ctx, "complete", taskID, e.agentID, nil); err != nil {
			return err
		}
		decision := e.gate.Validate(ctx, enforcement.OperationContext{Op: "complete", TaskID: taskID, AgentID: e.agentID})
		if err := decision.Err(); err != nil {
			return err
		}
		t, ready, err := e.store.CompleteAndUnblock(ctx, taskID, func(t *types.Task) {
			t.CompletedAt = &now
			if in.ActualHours != nil {
				t.ActualHours = in.ActualHours
			}
			if in.CompletionSummary != "" {
				t.CompletionSummary = in.CompletionSummary
			}
		}, store.AuditEntry{Op: "complete", TaskID: taskID, AgentID: e.agentID, Outcome: "ok"})
		if err != nil {
			return err
		}
		completed, unblocked = t, ready
		return nil
	})
	if err != nil {
		return types.Task{}, nil, err
	}

	e.hooks.RunPost(ctx, "complete", taskID, e.agentID, nil)
	e.hooks.RunOn(ctx, "task_completed", taskID, e.agentID, nil)
	_ = e.journal.Write(journalEvent("complete", taskID, e.agentID))
	for _, id := range unblocked {
		e.hooks.RunOn(ctx, "task_unblocked", id, e.agentID, nil)
		// Notify the dependent's assignee, or broadcast (empty TargetAgent)
		// if it has none — either way exactly one notification per
		// newly-unblocked task.
		unblockedTask, err := e.store.GetTask(ctx, id)
		target := ""
		title := id
		if err == nil {
			target = unblockedTask.Assignee
			title = unblockedTask.Title
		}
		_, _ = e.store.Notify(ctx, types.Notification{TaskID: id, Kind: types.NotificationUnblocked, TargetAgent: target, Payload: "unblocked: " + title})
	}
	return completed, unblocked, nil
}

// FeedbackInput is the argument set for Feedback.
type FeedbackInput struct {
	Quality    *int
	Timeliness *int
	Notes      string
}

// Feedback records reviewer feedback on a task; the task's status is not
// checked. §3/§7: quality and timeliness are integers 1..5; anything outside
// that range is InvalidInput.
func (e *Engine) Feedback(ctx context.Context, taskID string, in FeedbackInput) (types.Task, error) {
	if in.Quality != nil && (*in.Quality < 1 || *in.Quality > 5) {
		return types.Task{}, &InvalidInputError{Field: "feedback_quality", Reason: "must be between 1 and 5"}
	}
	if in.Timeliness != nil && (*in.Timeliness < 1 || *in.Timeliness > 5) {
		return types.Task{}, &InvalidInputError{Field: "feedback_timeliness", Reason: "must be between 1 and 5"}
	}
	t, err := e.store.UpdateTask(ctx, taskID, 0, func(t *types.Task) {
		if in.Quality != nil {
			t.FeedbackQuality = in.Quality
		}
		if in.Timeliness != nil {
			t.FeedbackTimeliness = in.Timeliness
		}
		if in.Notes != "" {
			t.FeedbackNotes = in.Notes
		}
	}, store.AuditEntry{Op: "feedback", TaskID: taskID, AgentID: e.agentID, Outcome: "ok"})
	if err != nil {
		return types.Task{}, err
	}
	_ = e.journal.Write(journalEvent("feedback", taskID, e.agentID))
	return t, nil
}

// Progress records incremental actual-hours progress on a task still in
// flight, without marking it complete.
func (e *Engine) Progress(ctx context.Context, taskID string, actualHours float64) (types.Task, error) {
	t, err := e.store.UpdateTask(ctx, taskID, 0, func(t *types.Task) {
		t.ActualHours = &actualHours
		if t.Status == types.StatusPending {
			t.Status = types.StatusInProgress
		}
	}, store.AuditEntry{Op: "progress", TaskID: taskID, AgentID: e.agentID, Outcome: "ok"})
	if err != nil {
		return types.Task{}, err
	}
	_ = e.journal.Write(journalEvent("progress", taskID, e.agentID))
	return t, nil
}
