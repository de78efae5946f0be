package models

import "time"

// EventCategory distinguishes enrollment windows from ordinary departmental
// calendar entries. Only enrollment events participate in batch activation.
type EventCategory string

const (
	EventCategoryEnrollment   EventCategory = "enrollment"
	EventCategoryDepartmental EventCategory = "departmental"
)

// EventStatus tracks the lifecycle of an admin-scheduled event.
type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCompleted EventStatus = "completed"
	EventStatusArchived  EventStatus = "archived"
)

// EnrollmentEvent is an admin-scheduled date/time window. Dates carry the
// calendar day; StartTime/EndTime are HH:MM clock strings and are nil for
// all-day windows.
type EnrollmentEvent struct {
	ID             string        `db:"id" json:"id"`
	Title          string        `db:"title" json:"title"`
	Category       EventCategory `db:"category" json:"category"`
	StartDate      time.Time     `db:"start_date" json:"start_date"`
	EndDate        *time.Time    `db:"end_date" json:"end_date,omitempty"`
	StartTime      *string       `db:"start_time" json:"start_time,omitempty"`
	EndTime        *string       `db:"end_time" json:"end_time,omitempty"`
	Batch          *string       `db:"batch" json:"batch,omitempty"`
	Trimester      *string       `db:"trimester" json:"trimester,omitempty"`
	Status         EventStatus   `db:"status" json:"status"`
	BatchActivated bool          `db:"batch_activated" json:"batch_activated"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// EffectiveEndDate resolves the day an event stops admitting applicants. A
// missing end date means the window closes the same day it opens.
func (e EnrollmentEvent) EffectiveEndDate() time.Time {
	if e.EndDate != nil {
		return *e.EndDate
	}
	return e.StartDate
}

// EventFilter narrows event list queries.
type EventFilter struct {
	Category  EventCategory
	Status    EventStatus
	Batch     string
	Trimester string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
