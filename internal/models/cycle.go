package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CycleState is the phase of the batch lifecycle. All seven values exist as
// stored strings for compatibility with historical rows; only
// waiting_enrollment, batch_active and trimester_completed are ever produced
// by the transitions implemented here. The semester-level states are
// reserved and unreached.
type CycleState string

const (
	CycleStateWaitingEnrollment  CycleState = "waiting_enrollment"
	CycleStateEnrollmentActive   CycleState = "enrollment_active"
	CycleStateBatchActive        CycleState = "batch_active"
	CycleStateSemester1Active    CycleState = "semester_1_active"
	CycleStateSemester2Active    CycleState = "semester_2_active"
	CycleStateSemester3Active    CycleState = "semester_3_active"
	CycleStateTrimesterCompleted CycleState = "trimester_completed"
)

// Display returns the human-readable label for a cycle state.
func (s CycleState) Display() string {
	switch s {
	case CycleStateWaitingEnrollment:
		return "Waiting for Enrollment"
	case CycleStateEnrollmentActive:
		return "Enrollment Active"
	case CycleStateBatchActive:
		return "Batch Active"
	case CycleStateSemester1Active:
		return "Semester 1 Active"
	case CycleStateSemester2Active:
		return "Semester 2 Active"
	case CycleStateSemester3Active:
		return "Semester 3 Active"
	case CycleStateTrimesterCompleted:
		return "Trimester Completed"
	default:
		return string(s)
	}
}

// Batch and semester keys. Batches advance through a fixed ring; semesters
// are the three instructional periods inside one batch.
const (
	Batch1 = "1"
	Batch2 = "2"
	Batch3 = "3"

	Semester1 = "1"
	Semester2 = "2"
	Semester3 = "3"
)

// SemesterKeys lists the valid semester identifiers in order.
var SemesterKeys = []string{Semester1, Semester2, Semester3}

// NextBatch advances the batch ring 1→2→3→1. Unknown input wraps to "1" so a
// corrupted row cannot push the ring outside its domain.
func NextBatch(batch string) string {
	switch batch {
	case Batch1:
		return Batch2
	case Batch2:
		return Batch3
	default:
		return Batch1
	}
}

// IsValidSemester reports whether the key names one of the three semesters.
func IsValidSemester(semester string) bool {
	for _, k := range SemesterKeys {
		if k == semester {
			return true
		}
	}
	return false
}

// CompletedSemesters maps semester key to completion, stored as JSONB.
type CompletedSemesters map[string]bool

// NewCompletedSemesters returns the all-false map for a fresh batch.
func NewCompletedSemesters() CompletedSemesters {
	return CompletedSemesters{Semester1: false, Semester2: false, Semester3: false}
}

// AllDone reports whether every semester has been completed.
func (c CompletedSemesters) AllDone() bool {
	for _, k := range SemesterKeys {
		if !c[k] {
			return false
		}
	}
	return true
}

// Value implements driver.Valuer for JSONB storage.
func (c CompletedSemesters) Value() (driver.Value, error) {
	if c == nil {
		c = NewCompletedSemesters()
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB storage.
func (c *CompletedSemesters) Scan(src interface{}) error {
	if src == nil {
		*c = NewCompletedSemesters()
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported completed_semesters type %T", src)
	}
	return json.Unmarshal(raw, c)
}

// BatchCycle is the singleton state-machine record governing batch
// progression. Exactly one row is active per deployment; the repository
// reconciles duplicates in favour of the newest row.
type BatchCycle struct {
	ID                       string             `db:"id" json:"id"`
	CurrentBatch             string             `db:"current_batch" json:"current_batch"`
	CycleState               CycleState         `db:"cycle_state" json:"cycle_state"`
	CurrentSemester          string             `db:"current_semester" json:"current_semester"`
	CompletedSemesters       CompletedSemesters `db:"completed_semesters" json:"completed_semesters"`
	ActiveEnrollmentEventID  *string            `db:"active_enrollment_event_id" json:"active_enrollment_event_id,omitempty"`
	BatchStartedAt           *time.Time         `db:"batch_started_at" json:"batch_started_at,omitempty"`
	LastSemesterCompletedAt  *time.Time         `db:"last_semester_completed_at" json:"last_semester_completed_at,omitempty"`
	IsActive                 bool               `db:"is_active" json:"is_active"`
	CreatedAt                time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time          `db:"updated_at" json:"updated_at"`
}

// CanStartEnrollment reports whether the cycle is in a state that admits a
// new batch activation.
func (c *BatchCycle) CanStartEnrollment() bool {
	if c == nil {
		return false
	}
	return c.CycleState == CycleStateWaitingEnrollment || c.CycleState == CycleStateTrimesterCompleted
}

// NewDefaultCycle returns the lazily-created initial record.
func NewDefaultCycle() *BatchCycle {
	return &BatchCycle{
		CurrentBatch:       Batch1,
		CycleState:         CycleStateWaitingEnrollment,
		CurrentSemester:    Semester1,
		CompletedSemesters: NewCompletedSemesters(),
		IsActive:           true,
	}
}
