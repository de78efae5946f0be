package models

import "time"

// SemesterStatus tracks a trainer's own progress within the active batch.
type SemesterStatus string

const (
	SemesterStatusOngoing   SemesterStatus = "ongoing"
	SemesterStatusCompleted SemesterStatus = "completed"
)

// ActiveSemesterSettings is per-trainer bookkeeping, one row per trainer,
// created lazily. The batch cycle never reads it; the admin end-batch
// workflow scans it as a gate before progressing the batch.
type ActiveSemesterSettings struct {
	ID                string         `db:"id" json:"id"`
	TrainerID         string         `db:"trainer_id" json:"trainer_id"`
	ActiveBatch       string         `db:"active_batch" json:"active_batch"`
	ActiveSemester    string         `db:"active_semester" json:"active_semester"`
	SemesterStatus    SemesterStatus `db:"semester_status" json:"semester_status"`
	CompletedSemester *string        `db:"completed_semester" json:"completed_semester,omitempty"`
	CompletedAt       *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}
