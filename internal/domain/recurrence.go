package domain

import "time"

// RecurringTaskTemplate owns a generated family of TaskInstances sharing
// a recurrence rule.
type RecurringTaskTemplate struct {
	ID               string
	Title            string
	Description      string
	RecurrenceRule   string // raw RRULE text, as parsed/serialized by package rrule
	Priority         Priority
	Tags             []string
	EstimatedMinutes *int
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TaskInstance is one materialized occurrence of a RecurringTaskTemplate.
type TaskInstance struct {
	ID           string
	TemplateID   string
	InstanceDate time.Time
	Title        string
	Description  string
	Status       Status
	Priority     Priority
	DueAt        *time.Time
	CompletedAt  *time.Time
	IsException  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
