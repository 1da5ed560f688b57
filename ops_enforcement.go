package taskctl

import (
	"context"

	"github.com/cklxx/taskctl/internal/enforcement"
)

// ValidateEnforcement runs the enforcement gate's checks for op/taskID
// without performing the mutation itself, so a caller can preview whether
// an action would be approved.
func (e *Engine) ValidateEnforcement(ctx context.Context, op, taskID string) enforcement.PolicyDecision {
	return e.gate.Validate(ctx, enforcement.OperationContext{Op: op, TaskID: taskID, AgentID: e.agentID})
}
