package taskctl

import (
	"context"

	"github.com/cklxx/taskctl/internal/enforcement"
	"github.com/cklxx/taskctl/internal/store"
)

// CriticalPath returns the longest-weight dependency chain ending at
// taskID, ordered from the earliest dependency to taskID itself, along
// with its total estimated-hours weight.
func (e *Engine) CriticalPath(ctx context.Context, taskID string) ([]string, float64, error) {
	return e.store.CriticalPath(ctx, taskID)
}

// AddDependency adds a depends_on edge from taskID to dependsOn after an
// existing task, rejecting the edge with Cycle if it would close a cycle
// in the dependency DAG.
func (e *Engine) AddDependency(ctx context.Context, taskID, dependsOn string) error {
	return e.withLock(ctx, func(ctx context.Context) error {
		if err := e.hooks.RunPre(ctx, "add_dependency", taskID, e.agentID, map[string]any{"depends_on": dependsOn}); err != nil {
			return err
		}
		// commander's intent for a dependency edge is the intent already
		// recorded on the dependent task, not a new per-call parameter.
		desc, hasCriteria := "", false
		if t, err := e.store.GetTask(ctx, taskID); err == nil {
			desc, hasCriteria = t.Description, len(t.SuccessCriteria) > 0
		}
		decision := e.gate.Validate(ctx, enforcement.OperationContext{
			Op: "add_dependency", TaskID: taskID, AgentID: e.agentID,
			Extra: map[string]any{"description": desc, "has_criteria": hasCriteria},
		})
		if err := decision.Err(); err != nil {
			return err
		}
		if err := e.store.AddDependency(ctx, taskID, dependsOn,
			store.AuditEntry{Op: "add_dependency", TaskID: taskID, AgentID: e.agentID, Outcome: "ok", Detail: dependsOn}); err != nil {
			return err
		}
		e.hooks.RunPost(ctx, "add_dependency", taskID, e.agentID, nil)
		_ = e.journal.Write(journalEvent("add_dependency", taskID, e.agentID))
		return nil
	})
}
