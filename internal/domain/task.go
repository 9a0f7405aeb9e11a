// Package domain holds the semantic-typed records cognicore's services
// exchange, independent of how the repository layer maps them onto
// SQL rows and JSON columns.
package domain

import "time"

// Status is a task's lifecycle state.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// ValidStatus reports whether s is one of the closed set of statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusBlocked, StatusDone, StatusArchived:
		return true
	}
	return false
}

// Priority is a task's urgency class.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is one of the closed set of priorities.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// AISource distinguishes a freshly computed AI insight from one served
// out of the parse/recommendation cache.
type AISource string

const (
	AISourceLive  AISource = "live"
	AISourceCache AISource = "cache"
)

// ReasoningStep is one entry in an AI insight's chain-of-thought trail.
type ReasoningStep struct {
	Step   int    `json:"step"`
	Detail string `json:"detail"`
}

// AIInsights is the optional AI-computed bundle attached to a task.
type AIInsights struct {
	Summary                string          `json:"summary,omitempty"`
	NextAction             string          `json:"next_action,omitempty"`
	Confidence             *float64        `json:"confidence,omitempty"`
	ComplexityScore        *float64        `json:"complexity_score,omitempty"`
	SuggestedStartAt       *time.Time      `json:"suggested_start_at,omitempty"`
	FocusModeRecommended   bool            `json:"focus_mode_recommended,omitempty"`
	EfficiencyPrediction   string          `json:"efficiency_prediction,omitempty"`
	ChainOfThoughtSteps    []ReasoningStep `json:"cot_steps,omitempty"`
	Metadata               map[string]any  `json:"metadata,omitempty"`
	Source                 AISource        `json:"source,omitempty"`
	GeneratedAt             *time.Time     `json:"generated_at,omitempty"`
}

// Task is cognicore's core unit of work.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      Status
	Priority    Priority
	Tags        []string

	CreatedAt       time.Time
	UpdatedAt       time.Time
	PlannedStartAt  *time.Time
	StartAt         *time.Time
	DueAt           *time.Time
	CompletedAt     *time.Time

	EstimatedMinutes *int
	EstimatedHours   *float64

	AI *AIInsights
}

// EffortMinutes normalizes EstimatedMinutes/EstimatedHours (at most one
// is canonical per spec) down to a single minutes value, or nil.
func (t *Task) EffortMinutes() *int {
	if t.EstimatedMinutes != nil {
		return t.EstimatedMinutes
	}
	if t.EstimatedHours != nil {
		minutes := int(*t.EstimatedHours * 60)
		return &minutes
	}
	return nil
}

// DependencyKind is the temporal relationship an edge enforces between
// its predecessor and successor task.
type DependencyKind string

const (
	DependencyFinishToStart DependencyKind = "finish_to_start"
	DependencyStartToStart  DependencyKind = "start_to_start"
	DependencyFinishToFinish DependencyKind = "finish_to_finish"
	DependencyStartToFinish DependencyKind = "start_to_finish"
)

// ValidDependencyKind reports whether k is one of the closed set of kinds.
func ValidDependencyKind(k DependencyKind) bool {
	switch k {
	case DependencyFinishToStart, DependencyStartToStart, DependencyFinishToFinish, DependencyStartToFinish:
		return true
	}
	return false
}

// TaskDependency is a directed edge in the task dependency DAG.
type TaskDependency struct {
	ID            string
	PredecessorID string
	SuccessorID   string
	Kind          DependencyKind
	CreatedAt     time.Time
}
