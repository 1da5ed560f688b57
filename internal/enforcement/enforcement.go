// Package enforcement is the policy gate mediating mutations: a pluggable
// pipeline of Checks evaluated before any write, returning a structured
// PolicyDecision rather than prompting interactively — an Engine caller
// decides what to do with a decision, this package never touches
// stdin/stdout.
package enforcement

import (
	"context"

	"github.com/cklxx/taskctl/pkg/errs"
)

// Mode controls how a rejected decision is handled.
type Mode string

const (
	ModeStrict   Mode = "strict"   // any violation fails the operation
	ModeStandard Mode = "standard" // violations proceed unless the caller's confirm is explicitly false
	ModeAdvisory Mode = "advisory" // violations are logged only, never block
)

// Check is one policy rule evaluated against an operation's context.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, op OperationContext) []errs.Violation
}

// OperationContext is what a Check inspects: the operation name and the
// task id involved, if any. Components register their own checks (e.g. the
// criteria validator's "all criteria pass before completion" rule) rather
// than this package knowing about task semantics directly.
type OperationContext struct {
	Op      string
	TaskID  string
	AgentID string
	// Confirm is the caller's "confirm" option: in standard mode, a
	// violation proceeds (with a warning) unless Confirm is explicitly
	// false. nil means the caller didn't set it, which also proceeds.
	Confirm *bool
	Extra   map[string]any
}

// PolicyDecision is the Gate's verdict.
type PolicyDecision struct {
	Approved   bool
	Action     string // "approve" | "reject" | "needs_confirmation"
	Message    string
	Violations []errs.Violation
}

// Gate runs every registered Check and classifies the result by Mode.
type Gate struct {
	mode   Mode
	checks []Check
}

func New(mode Mode, checks ...Check) *Gate {
	return &Gate{mode: mode, checks: checks}
}

// Validate runs all checks and returns the combined decision.
func (g *Gate) Validate(ctx context.Context, op OperationContext) PolicyDecision {
	var violations []errs.Violation
	for _, c := range g.checks {
		violations = append(violations, c.Evaluate(ctx, op)...)
	}
	if len(violations) == 0 {
		return PolicyDecision{Approved: true, Action: "approve", Message: "no policy violations"}
	}
	switch g.mode {
	case ModeAdvisory:
		return PolicyDecision{Approved: true, Action: "approve", Message: "advisory: violations logged, not blocking", Violations: violations}
	case ModeStandard:
		if op.Confirm != nil && !*op.Confirm {
			return PolicyDecision{Approved: false, Action: "needs_confirmation", Message: "operation requires confirmation", Violations: violations}
		}
		return PolicyDecision{Approved: true, Action: "approve", Message: "standard mode: violations present, proceeding", Violations: violations}
	default: // ModeStrict
		return PolicyDecision{Approved: false, Action: "reject", Message: "operation rejected by policy", Violations: violations}
	}
}

// Err converts a rejecting decision into a PolicyViolationError, or nil if
// the decision approved.
func (d PolicyDecision) Err() error {
	if d.Approved {
		return nil
	}
	return &errs.PolicyViolationError{Violations: d.Violations}
}
