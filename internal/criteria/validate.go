package criteria

import (
	"strings"

	"github.com/cklxx/taskctl/pkg/errs"
	"github.com/cklxx/taskctl/pkg/types"
)

// Result is the per-criterion outcome of a ValidateAll run.
type Result struct {
	Criterion      types.Criterion
	Passed         bool
	ManualRequired bool
	Err            error
}

// Report is the structured outcome of validating every criterion on a task.
type Report struct {
	Passed       int
	Total        int
	PerCriterion []Result
}

// ValidateAll evaluates every criterion's Measurable expression against the
// task's current facts. The literal expression "true"
// requires manual confirmation rather than evaluating to a machine-checked
// result; confirmManual is the caller's explicit override for that case. An
// empty Measurable is likewise always treated as manually-attested.
func ValidateAll(t types.Task, confirmManual bool) Report {
	sym := FromTask(t)
	results := make([]Result, 0, len(t.SuccessCriteria))
	passed := 0
	for _, c := range t.SuccessCriteria {
		expr := strings.TrimSpace(c.Measurable)
		switch {
		case expr == "" || strings.EqualFold(expr, "true"):
			r := Result{Criterion: c, ManualRequired: true, Passed: confirmManual}
			results = append(results, r)
		default:
			ok, err := Evaluate(expr, sym)
			results = append(results, Result{Criterion: c, Passed: ok && err == nil, Err: err})
		}
		if results[len(results)-1].Passed {
			passed++
		}
	}
	return Report{Passed: passed, Total: len(results), PerCriterion: results}
}

// RequireAllPass returns a CriteriaUnmetError unless every criterion passed.
func RequireAllPass(t types.Task, confirmManual bool) error {
	report := ValidateAll(t, confirmManual)
	if report.Passed < report.Total {
		return &errs.CriteriaUnmetError{Passed: report.Passed, Total: report.Total}
	}
	return nil
}
