package dto

import (
	"time"

	"github.com/learnhub/lms-portal-api/internal/models"
)

// CycleStatus is the GET /cycle payload.
type CycleStatus struct {
	CurrentBatch            string                    `json:"current_batch"`
	CycleState              models.CycleState         `json:"cycle_state"`
	CycleStateDisplay       string                    `json:"cycle_state_display"`
	CurrentSemester         string                    `json:"current_semester"`
	CompletedSemesters      models.CompletedSemesters `json:"completed_semesters"`
	CanStartEnrollment      bool                      `json:"can_start_enrollment"`
	BatchStartedAt          *time.Time                `json:"batch_started_at"`
	ActiveEnrollmentEventID *string                   `json:"active_enrollment_event_id"`
}

// NewCycleStatus projects a cycle record into its API shape.
func NewCycleStatus(cycle *models.BatchCycle) CycleStatus {
	return CycleStatus{
		CurrentBatch:            cycle.CurrentBatch,
		CycleState:              cycle.CycleState,
		CycleStateDisplay:       cycle.CycleState.Display(),
		CurrentSemester:         cycle.CurrentSemester,
		CompletedSemesters:      cycle.CompletedSemesters,
		CanStartEnrollment:      cycle.CanStartEnrollment(),
		BatchStartedAt:          cycle.BatchStartedAt,
		ActiveEnrollmentEventID: cycle.ActiveEnrollmentEventID,
	}
}

// CheckEventsResult reports the outcome of one check-and-activate pass.
// Activated is 0 or 1; the routine never activates more than one event per
// pass even when several qualify.
type CheckEventsResult struct {
	Activated int                     `json:"activated"`
	Event     *models.EnrollmentEvent `json:"event,omitempty"`
	Cycle     CycleStatus             `json:"cycle"`
}

// CompleteSemesterRequest marks one semester done within the current batch.
type CompleteSemesterRequest struct {
	Semester string `json:"semester" validate:"required,oneof=1 2 3"`
}

// CompleteSemesterResult is the response to a semester completion.
type CompleteSemesterResult struct {
	CompletedSemesters models.CompletedSemesters `json:"completed_semesters"`
	CycleState         models.CycleState         `json:"cycle_state"`
	AllCompleted       bool                      `json:"all_completed"`
}

// ProgressResult reports a batch rollover.
type ProgressResult struct {
	PreviousBatch string      `json:"previous_batch"`
	CurrentBatch  string      `json:"current_batch"`
	Cycle         CycleStatus `json:"cycle"`
}

// EnrollmentWindow is the evaluator's answer for "is enrollment open now".
type EnrollmentWindow struct {
	Open    bool                    `json:"open"`
	Message string                  `json:"message"`
	Event   *models.EnrollmentEvent `json:"event,omitempty"`
}

// TrainerCompletion summarises one trainer's progress for the end-batch gate.
type TrainerCompletion struct {
	TrainerID         string                `json:"trainer_id"`
	FullName          string                `json:"full_name"`
	ActiveBatch       string                `json:"active_batch"`
	ActiveSemester    string                `json:"active_semester"`
	SemesterStatus    models.SemesterStatus `json:"semester_status"`
	CompletedSemester *string               `json:"completed_semester,omitempty"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
}

// TrainerCompletionSummary aggregates the end-batch gate input.
type TrainerCompletionSummary struct {
	Batch        string              `json:"batch"`
	Total        int                 `json:"total"`
	Completed    int                 `json:"completed"`
	AllCompleted bool                `json:"all_completed"`
	Trainers     []TrainerCompletion `json:"trainers"`
}
