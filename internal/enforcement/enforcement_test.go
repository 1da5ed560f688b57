package enforcement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cklxx/taskctl/pkg/errs"
)

type failingCheck struct{ code string }

func (c failingCheck) Name() string { return c.code }
func (c failingCheck) Evaluate(context.Context, OperationContext) []errs.Violation {
	return []errs.Violation{{Code: c.code, Message: "always fails"}}
}

func TestGateModes(t *testing.T) {
	op := OperationContext{Op: "add", AgentID: "agent-a"}

	strict := New(ModeStrict, failingCheck{code: "x"})
	d := strict.Validate(t.Context(), op)
	assert.False(t, d.Approved)
	assert.Equal(t, "reject", d.Action)
	var policyErr *errs.PolicyViolationError
	require.ErrorAs(t, d.Err(), &policyErr)
	require.Len(t, policyErr.Violations, 1)
	assert.Equal(t, "x", policyErr.Violations[0].Code)

	advisory := New(ModeAdvisory, failingCheck{code: "x"})
	d = advisory.Validate(t.Context(), op)
	assert.True(t, d.Approved)
	assert.Len(t, d.Violations, 1, "advisory mode still surfaces what it logged")
	assert.NoError(t, d.Err())

	standard := New(ModeStandard, failingCheck{code: "x"})
	d = standard.Validate(t.Context(), op)
	assert.True(t, d.Approved, "standard mode proceeds when confirm was not explicitly false")

	confirm := false
	op.Confirm = &confirm
	d = standard.Validate(t.Context(), op)
	assert.False(t, d.Approved)
	assert.Equal(t, "needs_confirmation", d.Action)
}

func TestGateCleanOperationApproved(t *testing.T) {
	g := New(ModeStrict, AgentIdentityCheck{}, CommanderIntentCheck{})
	d := g.Validate(t.Context(), OperationContext{
		Op: "add", AgentID: "agent-a",
		Extra: map[string]any{"description": "why and what", "has_criteria": false},
	})
	assert.True(t, d.Approved)
	assert.NoError(t, d.Err())
}

func TestAgentIdentityCheck(t *testing.T) {
	check := AgentIdentityCheck{}

	assert.Empty(t, check.Evaluate(t.Context(), OperationContext{AgentID: "agent_1-ok"}))

	vs := check.Evaluate(t.Context(), OperationContext{})
	require.Len(t, vs, 1)
	assert.Equal(t, "agent_identity_missing", vs[0].Code)

	vs = check.Evaluate(t.Context(), OperationContext{AgentID: "spaces are bad"})
	require.Len(t, vs, 1)
	assert.Equal(t, "agent_identity_invalid", vs[0].Code)
}

func TestWorkspaceInitializedCheck(t *testing.T) {
	ok := WorkspaceInitializedCheck{Initialized: func() bool { return true }}
	assert.Empty(t, ok.Evaluate(t.Context(), OperationContext{}))

	missing := WorkspaceInitializedCheck{Initialized: func() bool { return false }}
	vs := missing.Evaluate(t.Context(), OperationContext{})
	require.Len(t, vs, 1)
	assert.Equal(t, "workspace_uninitialized", vs[0].Code)
}

func TestCommanderIntentCheck(t *testing.T) {
	check := CommanderIntentCheck{}

	vs := check.Evaluate(t.Context(), OperationContext{Op: "add", Extra: map[string]any{}})
	require.Len(t, vs, 1)
	assert.Equal(t, "missing_commanders_intent", vs[0].Code)

	assert.Empty(t, check.Evaluate(t.Context(), OperationContext{
		Op: "add", Extra: map[string]any{"description": "migrate the auth table"},
	}))
	assert.Empty(t, check.Evaluate(t.Context(), OperationContext{
		Op: "add", Extra: map[string]any{"has_criteria": true},
	}))
	assert.Empty(t, check.Evaluate(t.Context(), OperationContext{Op: "complete"}),
		"intent is only required when creating tasks or dependencies")
}

func TestDetectOrchestrationContext(t *testing.T) {
	t.Setenv("TM_AGENT_ID", "")

	assert.False(t, DetectOrchestrationContext(false, false))
	assert.False(t, DetectOrchestrationContext(true, false), "a single heuristic is not enough")
	assert.True(t, DetectOrchestrationContext(true, true))

	t.Setenv("TM_AGENT_ID", "agent-a")
	assert.True(t, DetectOrchestrationContext(true, false))
	assert.False(t, DetectOrchestrationContext(false, false))
}
