package enforcement

import (
	"context"
	"os"
	"regexp"

	"github.com/cklxx/taskctl/pkg/errs"
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// AgentIdentityCheck requires the agent identity on the operation to be
// present and match the accepted identity pattern.
type AgentIdentityCheck struct{}

func (AgentIdentityCheck) Name() string { return "agent_identity" }

func (AgentIdentityCheck) Evaluate(_ context.Context, op OperationContext) []errs.Violation {
	if op.AgentID == "" {
		return []errs.Violation{{Code: "agent_identity_missing", Message: "no agent identity resolved for this operation", FixHint: "set TM_AGENT_ID or pass an explicit agent id"}}
	}
	if !agentIDPattern.MatchString(op.AgentID) {
		return []errs.Violation{{Code: "agent_identity_invalid", Message: "agent id " + op.AgentID + " does not match [A-Za-z0-9_-]{1,64}", FixHint: "use a shorter identity made only of letters, digits, _ and -"}}
	}
	return nil
}

// WorkspaceInitializedCheck requires the workspace state tree to already
// exist. initialized is a closure rather than a direct
// Workspace reference so this package never imports internal/workspacefs.
type WorkspaceInitializedCheck struct {
	Initialized func() bool
}

func (WorkspaceInitializedCheck) Name() string { return "workspace_initialized" }

func (c WorkspaceInitializedCheck) Evaluate(_ context.Context, _ OperationContext) []errs.Violation {
	if c.Initialized != nil && !c.Initialized() {
		return []errs.Violation{{Code: "workspace_uninitialized", Message: "workspace state directory is missing", FixHint: "run init before any other operation"}}
	}
	return nil
}

// intentOps are the operations CommanderIntentCheck gates on: creating
// tasks or dependencies requires a "commander's intent" (non-empty
// description or a success_criteria list) when the gate is in strict mode.
var intentOps = map[string]bool{"add": true, "add_dependency": true}

// CommanderIntentCheck rejects task creation that states no intent. Extra
// is expected to carry "description" (string) and "has_criteria" (bool)
// for add/add_dependency operations; other operations are ignored.
type CommanderIntentCheck struct{}

func (CommanderIntentCheck) Name() string { return "commanders_intent" }

func (CommanderIntentCheck) Evaluate(_ context.Context, op OperationContext) []errs.Violation {
	if !intentOps[op.Op] {
		return nil
	}
	desc, _ := op.Extra["description"].(string)
	hasCriteria, _ := op.Extra["has_criteria"].(bool)
	if desc == "" && !hasCriteria {
		return []errs.Violation{{
			Code:    "missing_commanders_intent",
			Message: "task creation has neither a description nor success_criteria",
			FixHint: "add a non-empty description or at least one success_criteria entry",
		}}
	}
	return nil
}

// DetectOrchestrationContext reports
// whether the calling process looks like it is part of a multi-agent
// orchestration session, in which case the Gate should auto-enable strict
// mode even if the workspace config says otherwise. Heuristics: an agent id
// env var is set, a hooks directory exists alongside the workspace, or more
// than one distinct agent has already acted in this workspace (indicated by
// the caller via priorMultiAgentActivity, since only the Store knows that).
func DetectOrchestrationContext(hooksDirExists bool, priorMultiAgentActivity bool) bool {
	matches := 0
	if os.Getenv("TM_AGENT_ID") != "" {
		matches++
	}
	if hooksDirExists {
		matches++
	}
	if priorMultiAgentActivity {
		matches++
	}
	return matches >= 2
}
