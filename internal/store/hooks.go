package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// HookInvocation is one recorded hook run, backing the avg/p50/p95/count/
// errors/timeouts aggregate HookStats computes.
type HookInvocation struct {
	ID         string
	HookName   string
	Op         string
	TaskID     string
	StartedAt  time.Time
	DurationMs int64
	Decision   string
	Error      string
}

// RecordHookInvocation appends one hook run. Called by internal/hooks after
// every subprocess invocation (or circuit-open skip), independent of the
// mutation's own transaction since a hook decision must be durable even if
// the mutation it gated is ultimately rejected.
func (s *Store) RecordHookInvocation(ctx context.Context, h HookInvocation) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.StartedAt.IsZero() {
		h.StartedAt = nowUTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO hook_invocations (id, hook_name, op, task_id, started_at, duration_ms, decision, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.HookName, h.Op, nullIfEmpty(h.TaskID), fmtTime(h.StartedAt), h.DurationMs, h.Decision, h.Error)
		return err
	})
}

// HookStats is the §4.7 aggregate for one hook.
type HookStats struct {
	Count    int
	Errors   int
	Timeouts int
	AvgMs    float64
	P50Ms    float64
	P95Ms    float64
}

// HookStats computes the aggregate from recorded invocations.
func (s *Store) HookStats(ctx context.Context, hookName string) (HookStats, error) {
	var durations []int64
	var stats HookStats
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT duration_ms, decision, error FROM hook_invocations WHERE hook_name=? ORDER BY duration_ms ASC`, hookName)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ms int64
			var decision, errStr string
			if err := rows.Scan(&ms, &decision, &errStr); err != nil {
				return err
			}
			durations = append(durations, ms)
			stats.Count++
			if errStr != "" {
				stats.Errors++
			}
			if decision == "timeout" {
				stats.Timeouts++
			}
		}
		return rows.Err()
	})
	if err != nil || len(durations) == 0 {
		return stats, err
	}
	var sum int64
	for _, d := range durations {
		sum += d
	}
	stats.AvgMs = float64(sum) / float64(len(durations))
	stats.P50Ms = float64(percentile(durations, 0.50))
	stats.P95Ms = float64(percentile(durations, 0.95))
	return stats, nil
}

// percentile expects sorted ascending durations.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
