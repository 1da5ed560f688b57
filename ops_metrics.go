package taskctl

import (
	"context"

	"github.com/cklxx/taskctl/internal/store"
	"github.com/cklxx/taskctl/internal/telemetry"
	"github.com/cklxx/taskctl/pkg/types"
)

// Metrics computes the current aggregate report (completion rate, feedback
// averages, on-time delivery, per-assignee stats) and feeds it to the otel
// gauges the next scrape will observe.
func (e *Engine) Metrics(ctx context.Context) (telemetry.Report, error) {
	// Aggregates must cover every task, not the default 100-row page, so
	// the scan is explicitly unbounded.
	tasks, err := e.store.List(ctx, types.Filter{Limit: types.Unbounded})
	if err != nil {
		return telemetry.Report{}, err
	}
	report := telemetry.Compute(tasks)
	e.meters.Update(report)
	return report, nil
}

// HookStats returns the invocation statistics for a named hook: avg, p50,
// p95, count, errors, and timeouts.
func (e *Engine) HookStats(ctx context.Context, hookName string) (store.HookStats, error) {
	return e.store.HookStats(ctx, hookName)
}
