package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/learnhub/lms-portal-api/internal/models"
)

const settingsColumns = "id, trainer_id, active_batch, active_semester, semester_status, completed_semester, completed_at, created_at, updated_at"

// SemesterSettingsRepository handles per-trainer semester bookkeeping rows.
type SemesterSettingsRepository struct {
	db *sqlx.DB
}

// NewSemesterSettingsRepository instantiates a settings repository.
func NewSemesterSettingsRepository(db *sqlx.DB) *SemesterSettingsRepository {
	return &SemesterSettingsRepository{db: db}
}

// FindByTrainer loads the settings row for one trainer.
func (r *SemesterSettingsRepository) FindByTrainer(ctx context.Context, trainerID string) (*models.ActiveSemesterSettings, error) {
	query := fmt.Sprintf("SELECT %s FROM active_semester_settings WHERE trainer_id = $1", settingsColumns)
	var settings models.ActiveSemesterSettings
	if err := r.db.GetContext(ctx, &settings, query, trainerID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Create inserts a new settings row.
func (r *SemesterSettingsRepository) Create(ctx context.Context, settings *models.ActiveSemesterSettings) error {
	if settings.ID == "" {
		settings.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now

	const query = `INSERT INTO active_semester_settings (id, trainer_id, active_batch, active_semester, semester_status, completed_semester, completed_at, created_at, updated_at)
		VALUES (:id, :trainer_id, :active_batch, :active_semester, :semester_status, :completed_semester, :completed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("create semester settings: %w", err)
	}
	return nil
}

// Update persists mutable fields on a settings row.
func (r *SemesterSettingsRepository) Update(ctx context.Context, settings *models.ActiveSemesterSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	const query = `UPDATE active_semester_settings SET active_batch = :active_batch, active_semester = :active_semester, semester_status = :semester_status, completed_semester = :completed_semester, completed_at = :completed_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("update semester settings: %w", err)
	}
	return nil
}

// SettingsWithTrainer joins the owning trainer's name for summaries.
type SettingsWithTrainer struct {
	models.ActiveSemesterSettings
	FullName string `db:"full_name"`
}

// ListWithTrainers returns every settings row joined with trainer names.
func (r *SemesterSettingsRepository) ListWithTrainers(ctx context.Context) ([]SettingsWithTrainer, error) {
	const query = `SELECT s.id, s.trainer_id, s.active_batch, s.active_semester, s.semester_status, s.completed_semester, s.completed_at, s.created_at, s.updated_at, u.full_name
		FROM active_semester_settings s
		JOIN users u ON u.id = s.trainer_id
		ORDER BY u.full_name ASC`
	var rows []SettingsWithTrainer
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list semester settings: %w", err)
	}
	return rows, nil
}

// ResetForBatch moves every trainer's bookkeeping onto a freshly started
// batch: status back to ongoing, semester 1, completion cleared.
func (r *SemesterSettingsRepository) ResetForBatch(ctx context.Context, batch string) error {
	const query = `UPDATE active_semester_settings
		SET active_batch = $1, active_semester = $2, semester_status = $3, completed_semester = NULL, completed_at = NULL, updated_at = $4`
	if _, err := r.db.ExecContext(ctx, query, batch, models.Semester1, models.SemesterStatusOngoing, time.Now().UTC()); err != nil {
		return fmt.Errorf("reset semester settings: %w", err)
	}
	return nil
}
