package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/cklxx/taskctl/pkg/types"
)

// Meters bridges the engine's computed aggregates into otel instruments
// exported through a prometheus.Exporter, so the same numbers the `metrics`
// operation returns in-process are also scrapeable if the embedding
// application exposes a /metrics endpoint.
type Meters struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	completionRate  metric.Float64ObservableGauge
	feedbackQuality metric.Float64ObservableGauge
	onTimeRate      metric.Float64ObservableGauge

	latest Report
}

// NewMeters constructs the otel MeterProvider wired to a prometheus
// exporter. The returned *prometheus.Exporter implements
// prometheus.Collector and should be registered with the embedding
// application's registry.
func NewMeters() (*Meters, *prometheus.Exporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/cklxx/taskctl")

	m := &Meters{provider: provider, meter: meter}

	m.completionRate, err = meter.Float64ObservableGauge("taskctl.completion_rate",
		metric.WithDescription("Fraction of tasks in the completed status."))
	if err != nil {
		return nil, nil, err
	}
	m.feedbackQuality, err = meter.Float64ObservableGauge("taskctl.feedback_quality_avg",
		metric.WithDescription("Average feedback_quality across completed tasks."))
	if err != nil {
		return nil, nil, err
	}
	m.onTimeRate, err = meter.Float64ObservableGauge("taskctl.on_time_rate",
		metric.WithDescription("Fraction of completed tasks finished before their deadline."))
	if err != nil {
		return nil, nil, err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(m.completionRate, m.latest.CompletionRate)
		o.ObserveFloat64(m.feedbackQuality, m.latest.AvgFeedbackQuality)
		o.ObserveFloat64(m.onTimeRate, m.latest.OnTimeRate)
		return nil
	}, m.completionRate, m.feedbackQuality, m.onTimeRate)
	if err != nil {
		return nil, nil, err
	}

	return m, exporter, nil
}

// Update refreshes the values the next collection will observe.
func (m *Meters) Update(r Report) { m.latest = r }

// Shutdown flushes and stops the provider.
func (m *Meters) Shutdown(ctx context.Context) error { return m.provider.Shutdown(ctx) }

// Report is the point-in-time aggregate the `metrics` operation returns.
type Report struct {
	TotalTasks         int
	CompletedTasks     int
	CompletionRate     float64
	AvgFeedbackQuality float64
	AvgFeedbackTimely  float64
	OnTimeRate         float64
	ByAssignee         map[string]AssigneeStats
}

// AssigneeStats is one agent's slice of Report.
type AssigneeStats struct {
	Assigned  int
	Completed int
}

// Compute derives a Report from the current task set.
func Compute(tasks []types.Task) Report {
	r := Report{TotalTasks: len(tasks), ByAssignee: map[string]AssigneeStats{}}
	var qualitySum, timelySum float64
	var qualityN, timelyN int
	var onTimeN, deadlineN int
	for _, t := range tasks {
		if t.Assignee != "" {
			st := r.ByAssignee[t.Assignee]
			st.Assigned++
			if t.Status == types.StatusCompleted {
				st.Completed++
			}
			r.ByAssignee[t.Assignee] = st
		}
		if t.Status != types.StatusCompleted {
			continue
		}
		r.CompletedTasks++
		if t.FeedbackQuality != nil {
			qualitySum += float64(*t.FeedbackQuality)
			qualityN++
		}
		if t.FeedbackTimeliness != nil {
			timelySum += float64(*t.FeedbackTimeliness)
			timelyN++
		}
		if t.Deadline != nil && t.CompletedAt != nil {
			deadlineN++
			if !t.CompletedAt.After(*t.Deadline) {
				onTimeN++
			}
		}
	}
	if r.TotalTasks > 0 {
		r.CompletionRate = float64(r.CompletedTasks) / float64(r.TotalTasks)
	}
	if qualityN > 0 {
		r.AvgFeedbackQuality = qualitySum / float64(qualityN)
	}
	if timelyN > 0 {
		r.AvgFeedbackTimely = timelySum / float64(timelyN)
	}
	if deadlineN > 0 {
		r.OnTimeRate = float64(onTimeN) / float64(deadlineN)
	}
	return r
}
