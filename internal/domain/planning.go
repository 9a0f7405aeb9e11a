package domain

import "time"

// SessionStatus is a planning session's lifecycle state.
type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionApplied SessionStatus = "applied"
)

// BlockStatus is a time block's lifecycle state.
type BlockStatus string

const (
	BlockDraft     BlockStatus = "draft"
	BlockPlanned   BlockStatus = "planned"
	BlockCompleted BlockStatus = "completed"
	BlockCancelled BlockStatus = "cancelled"
)

// Flexibility is a free-form label describing how movable a block is.
type Flexibility string

const (
	FlexibilityFixed    Flexibility = "fixed"
	FlexibilityFlexible Flexibility = "flexible"
	FlexibilityModerate Flexibility = "moderate"
)

// ConflictFlag is drawn from the closed vocabulary attached to blocks.
type ConflictFlag string

const (
	ConflictSplitTask      ConflictFlag = "split-task"
	ConflictDeadlineRisk   ConflictFlag = "deadline-risk"
	ConflictLongSession    ConflictFlag = "long-session"
	ConflictCalendarOverlap ConflictFlag = "calendar-overlap"
	ConflictDailyOverload  ConflictFlag = "daily-overload"
)

// Severity ranks a detected conflict.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Conflict is one entry produced by conflict detection.
type Conflict struct {
	ConflictType    string
	Severity        Severity
	Message         string
	RelatedBlockID  string
	RelatedEventID  string
}

// ExternalEvent is a pre-existing calendar event the optimizer must
// schedule around.
type ExternalEvent struct {
	ID    string
	Start time.Time
	End   time.Time
	Type  string
}

// AvailabilityWindow is a contiguous range within which blocks may be placed.
type AvailabilityWindow struct {
	Start time.Time
	End   time.Time
}

// ScheduleConstraints shapes one planning attempt.
type ScheduleConstraints struct {
	PlanningStartAt      *time.Time
	PlanningEndAt        *time.Time
	AvailabilityWindows  []AvailabilityWindow
	ExistingEvents       []ExternalEvent
	MaxDailyFocusMinutes *int
}

// SchedulingPreferences tunes how the optimizer shapes blocks.
type SchedulingPreferences struct {
	ID                string
	FocusStartMinute  *int // minute-of-day, 0..1440
	FocusEndMinute    *int
	BufferMinutes     int
	PreferCompact     bool
	UpdatedAt         time.Time
}

// RationaleStep is one entry in a plan option's ordered reasoning trail.
type RationaleStep struct {
	Step   int    `json:"step"`
	Thought string `json:"thought"`
	Result string `json:"result,omitempty"`
}

// TimeBlock is a scheduled interval assigned to a task within a plan option.
type TimeBlock struct {
	ID             string
	OptionID       string
	TaskID         string
	StartAt        time.Time
	EndAt          time.Time
	Flexibility    Flexibility
	Confidence     float64
	ConflictFlags  []ConflictFlag
	AppliedAt      *time.Time
	ActualStartAt  *time.Time
	ActualEndAt    *time.Time
	Status         BlockStatus
}

// PlanningOption is one ranked, scored schedule candidate within a session.
type PlanningOption struct {
	ID         string
	SessionID  string
	Rank       int
	Score      float64
	Summary    string
	Rationale  []RationaleStep
	RiskNotes  string
	Conflicts  []Conflict
	IsFallback bool
	CreatedAt  time.Time
	Blocks     []TimeBlock
}

// PlanningSession is a persisted attempt to schedule a set of tasks.
type PlanningSession struct {
	ID                       string
	TaskIDs                  []string
	Constraints              ScheduleConstraints
	GeneratedAt              time.Time
	Status                   SessionStatus
	SelectedOptionID         string
	PersonalizationSnapshot  SchedulingPreferences
	CreatedAt                time.Time
	UpdatedAt                time.Time
	Options                  []PlanningOption
}

// BlockOverride is a caller-supplied adjustment applied to one block
// during Apply/ResolveConflicts.
type BlockOverride struct {
	BlockID     string
	StartAt     *time.Time
	EndAt       *time.Time
	Flexibility *Flexibility
}
