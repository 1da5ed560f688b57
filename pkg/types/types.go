// Package types defines the entities shared across the task coordination
// engine's store, resolver, channels, and template packages — one shared
// definition imported by every internal layer instead of each layer
// defining its own copy.
package types

import "time"

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
)

// Priority orders tasks within a list query.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight returns a sortable rank, higher is more urgent.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Less reports whether p should sort before other in priority-desc order.
func (p Priority) Less(other Priority) bool { return p.Weight() > other.Weight() }

// Criterion is one success condition evaluated at completion time.
type Criterion struct {
	Text       string `json:"criterion"`
	Measurable string `json:"measurable"`
}

// Task is the central entity tracked by the store.
type Task struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	Status             Status      `json:"status"`
	Priority           Priority    `json:"priority"`
	Assignee           string      `json:"assignee,omitempty"`
	CreatedBy          string      `json:"created_by"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	SuccessCriteria    []Criterion `json:"success_criteria,omitempty"`
	Deadline           *time.Time  `json:"deadline,omitempty"`
	EstimatedHours     *float64    `json:"estimated_hours,omitempty"`
	ActualHours        *float64    `json:"actual_hours,omitempty"`
	FeedbackQuality    *int        `json:"feedback_quality,omitempty"`
	FeedbackTimeliness *int        `json:"feedback_timeliness,omitempty"`
	FeedbackNotes      string      `json:"feedback_notes,omitempty"`
	CompletionSummary  string      `json:"completion_summary,omitempty"`
	Tags               []string    `json:"tags,omitempty"`
	Version            int64       `json:"version"`
}

// Dependency is a directed edge task_id -> depends_on.
type Dependency struct {
	TaskID    string `json:"task_id"`
	DependsOn string `json:"depends_on"`
}

// Participant records an agent that has joined a task.
type Participant struct {
	TaskID   string    `json:"task_id"`
	AgentID  string    `json:"agent_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// NotificationKind enumerates notification triggers.
type NotificationKind string

const (
	NotificationUnblocked NotificationKind = "unblocked"
	NotificationCompleted NotificationKind = "completed"
	NotificationDiscovery NotificationKind = "discovery"
	NotificationAssigned  NotificationKind = "assigned"
	NotificationConflict  NotificationKind = "conflict"
)

// Notification is a fan-out row; TargetAgent == "" means broadcast.
type Notification struct {
	ID           string           `json:"id"`
	TaskID       string           `json:"task_id,omitempty"`
	Kind         NotificationKind `json:"kind"`
	TargetAgent  string           `json:"target_agent,omitempty"`
	Payload      string           `json:"payload"`
	CreatedAt    time.Time        `json:"created_at"`
	Acknowledged bool             `json:"acknowledged"`
}

// ContextEntryKind enumerates shared-context entry kinds.
type ContextEntryKind string

const (
	ContextShare    ContextEntryKind = "share"
	ContextDiscover ContextEntryKind = "discover"
	ContextSync     ContextEntryKind = "sync"
)

// ContextEntry is a shared-visibility update on a task.
type ContextEntry struct {
	TaskID    string           `json:"task_id"`
	AgentID   string           `json:"agent_id"`
	Kind      ContextEntryKind `json:"kind"`
	Text      string           `json:"text"`
	CreatedAt time.Time        `json:"created_at"`
	Seq       int64            `json:"seq"`
}

// PrivateNote is a single-reader scratch entry.
type PrivateNote struct {
	TaskID    string    `json:"task_id"`
	AgentID   string    `json:"agent_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Aggregate is the full view returned by show(): the task (its criteria are
// embedded in Task.SuccessCriteria), its dependency ids, and the ids of the
// tasks that depend on it.
type Aggregate struct {
	Task       Task     `json:"task"`
	DependsOn  []string `json:"depends_on"`
	Dependents []string `json:"dependents"`
}

// Unbounded is the Filter.Limit sentinel requesting every matching row
// instead of the default 100-row cap — aggregate
// queries like metrics need the whole set.
const Unbounded = -1

// Filter selects a subset of tasks for list().
type Filter struct {
	Status          Status
	Assignee        string
	HasDependencies *bool
	IsBlocked       *bool
	Priority        Priority
	Tag             string
	// Limit caps the result set. Zero uses the default cap (100);
	// Unbounded (-1) returns every matching row.
	Limit int
}

// TemplateVariable describes one substitution slot in a TemplateSpec.
type TemplateVariable struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"` // string|int|enum
	Required bool     `yaml:"required"`
	Default  string   `yaml:"default,omitempty"`
	Options  []string `yaml:"options,omitempty"`
}

// TemplateTaskStub is one task-to-be-instantiated within a template.
type TemplateTaskStub struct {
	Title           string      `yaml:"title"`
	Description     string      `yaml:"description,omitempty"`
	Priority        string      `yaml:"priority,omitempty"`
	DependsOn       []int       `yaml:"depends_on,omitempty"`
	SuccessCriteria []Criterion `yaml:"success_criteria,omitempty"`
	EstimatedHours  *float64    `yaml:"estimated_hours,omitempty"`
	Tags            []string    `yaml:"tags,omitempty"`
}

// TemplateMetadata is the template's descriptive header.
type TemplateMetadata struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description,omitempty"`
}

// TemplateSpec is a declarative task-graph template.
type TemplateSpec struct {
	Metadata  TemplateMetadata   `yaml:"metadata"`
	Variables []TemplateVariable `yaml:"variables,omitempty"`
	Tasks     []TemplateTaskStub `yaml:"tasks"`
}
