package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/learnhub/lms-portal-api/internal/models"
)

const cycleColumns = "id, current_batch, cycle_state, current_semester, completed_semesters, active_enrollment_event_id, batch_started_at, last_semester_completed_at, is_active, created_at, updated_at"

// CycleRepository handles persistence for the batch cycle singleton.
type CycleRepository struct {
	db *sqlx.DB
}

// NewCycleRepository instantiates a cycle repository.
func NewCycleRepository(db *sqlx.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// ListActive returns every row still flagged active, newest first. More than
// one row means a past race; the caller keeps the head and deactivates the
// rest.
func (r *CycleRepository) ListActive(ctx context.Context) ([]models.BatchCycle, error) {
	query := fmt.Sprintf("SELECT %s FROM batch_cycles WHERE is_active = TRUE ORDER BY created_at DESC", cycleColumns)
	var cycles []models.BatchCycle
	if err := r.db.SelectContext(ctx, &cycles, query); err != nil {
		return nil, fmt.Errorf("list active cycles: %w", err)
	}
	return cycles, nil
}

// Create inserts a new cycle record.
func (r *CycleRepository) Create(ctx context.Context, cycle *models.BatchCycle) error {
	if cycle.ID == "" {
		cycle.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cycle.CreatedAt.IsZero() {
		cycle.CreatedAt = now
	}
	cycle.UpdatedAt = now

	const query = `INSERT INTO batch_cycles (id, current_batch, cycle_state, current_semester, completed_semesters, active_enrollment_event_id, batch_started_at, last_semester_completed_at, is_active, created_at, updated_at)
		VALUES (:id, :current_batch, :cycle_state, :current_semester, :completed_semesters, :active_enrollment_event_id, :batch_started_at, :last_semester_completed_at, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cycle); err != nil {
		return fmt.Errorf("create batch cycle: %w", err)
	}
	return nil
}

// DeactivateExcept clears the active flag on every row but the survivor.
func (r *CycleRepository) DeactivateExcept(ctx context.Context, keepID string) error {
	const query = `UPDATE batch_cycles SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), keepID); err != nil {
		return fmt.Errorf("deactivate duplicate cycles: %w", err)
	}
	return nil
}

// ActivateFromEvent flips the cycle into batch_active and consumes the
// triggering event in one transaction. Both updates are guarded so that a
// concurrent activation, or a replayed event, aborts with sql.ErrNoRows
// instead of double-starting a batch.
func (r *CycleRepository) ActivateFromEvent(ctx context.Context, cycleID, eventID string, startedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activation tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	reset, err := models.NewCompletedSemesters().Value()
	if err != nil {
		return fmt.Errorf("encode completed semesters: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE batch_cycles
		SET cycle_state = $1, active_enrollment_event_id = $2, batch_started_at = $3, current_semester = $4, completed_semesters = $5, last_semester_completed_at = NULL, updated_at = $3
		WHERE id = $6 AND cycle_state IN ($7, $8)`,
		models.CycleStateBatchActive, eventID, startedAt, models.Semester1, reset, cycleID,
		models.CycleStateWaitingEnrollment, models.CycleStateTrimesterCompleted)
	if err != nil {
		return fmt.Errorf("activate cycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = sql.ErrNoRows
		return err
	}

	res, err = tx.ExecContext(ctx, `UPDATE events
		SET batch_activated = TRUE, status = $1, updated_at = $2
		WHERE id = $3 AND batch_activated = FALSE`,
		models.EventStatusCompleted, startedAt, eventID)
	if err != nil {
		return fmt.Errorf("consume enrollment event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit activation tx: %w", err)
	}
	return nil
}

// UpdateProgress persists semester-completion fields on the cycle row.
func (r *CycleRepository) UpdateProgress(ctx context.Context, cycle *models.BatchCycle) error {
	cycle.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batch_cycles SET cycle_state = :cycle_state, completed_semesters = :completed_semesters, last_semester_completed_at = :last_semester_completed_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, cycle); err != nil {
		return fmt.Errorf("update cycle progress: %w", err)
	}
	return nil
}

// ProgressToNextBatch advances the ring and resets the cycle for the next
// enrollment. Guarded on trimester_completed so a double-submit cannot skip
// a batch; a stale state yields sql.ErrNoRows.
func (r *CycleRepository) ProgressToNextBatch(ctx context.Context, cycleID, nextBatch string) error {
	reset, err := models.NewCompletedSemesters().Value()
	if err != nil {
		return fmt.Errorf("encode completed semesters: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE batch_cycles
		SET current_batch = $1, cycle_state = $2, current_semester = $3, completed_semesters = $4, active_enrollment_event_id = NULL, updated_at = $5
		WHERE id = $6 AND cycle_state = $7`,
		nextBatch, models.CycleStateWaitingEnrollment, models.Semester1, reset, time.Now().UTC(), cycleID,
		models.CycleStateTrimesterCompleted)
	if err != nil {
		return fmt.Errorf("progress cycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
