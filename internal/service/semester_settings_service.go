package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/learnhub/lms-portal-api/internal/dto"
	"github.com/learnhub/lms-portal-api/internal/models"
	"github.com/learnhub/lms-portal-api/internal/repository"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
)

type settingsRepository interface {
	FindByTrainer(ctx context.Context, trainerID string) (*models.ActiveSemesterSettings, error)
	Create(ctx context.Context, settings *models.ActiveSemesterSettings) error
	Update(ctx context.Context, settings *models.ActiveSemesterSettings) error
	ListWithTrainers(ctx context.Context) ([]repository.SettingsWithTrainer, error)
	ResetForBatch(ctx context.Context, batch string) error
}

type batchProgressor interface {
	GetActiveCycle(ctx context.Context) (*models.BatchCycle, error)
	ProgressToNextBatch(ctx context.Context) (dto.ProgressResult, error)
}

// SemesterSettingsService owns the per-trainer semester bookkeeping. It runs
// parallel to the batch cycle: the cycle never consults it, but the admin
// end-batch workflow refuses to roll the batch over until every trainer has
// reported completion.
type SemesterSettingsService struct {
	repo   settingsRepository
	cycles batchProgressor
	logger *zap.Logger
	now    func() time.Time
}

// NewSemesterSettingsService creates a settings service.
func NewSemesterSettingsService(repo settingsRepository, cycles batchProgressor, logger *zap.Logger) *SemesterSettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterSettingsService{repo: repo, cycles: cycles, logger: logger, now: time.Now}
}

// GetForTrainer returns the trainer's settings row, creating it lazily from
// the active cycle's current batch and semester.
func (s *SemesterSettingsService) GetForTrainer(ctx context.Context, trainerID string) (*models.ActiveSemesterSettings, error) {
	settings, err := s.repo.FindByTrainer(ctx, trainerID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester settings")
	}

	cycle, err := s.cycles.GetActiveCycle(ctx)
	if err != nil {
		return nil, err
	}

	settings = &models.ActiveSemesterSettings{
		TrainerID:      trainerID,
		ActiveBatch:    cycle.CurrentBatch,
		ActiveSemester: cycle.CurrentSemester,
		SemesterStatus: models.SemesterStatusOngoing,
	}
	if err := s.repo.Create(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester settings")
	}
	return settings, nil
}

// CompleteOwnSemester marks the trainer's active semester as completed.
// Repeats only re-stamp the completion time.
func (s *SemesterSettingsService) CompleteOwnSemester(ctx context.Context, trainerID string) (*models.ActiveSemesterSettings, error) {
	settings, err := s.GetForTrainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}

	completed := settings.ActiveSemester
	completedAt := s.now().UTC()
	settings.SemesterStatus = models.SemesterStatusCompleted
	settings.CompletedSemester = &completed
	settings.CompletedAt = &completedAt

	if err := s.repo.Update(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester settings")
	}

	s.logger.Info("trainer completed semester",
		zap.String("trainer_id", trainerID), zap.String("semester", completed))
	return settings, nil
}

// CompletionSummary aggregates every trainer's progress against the current
// batch. A trainer counts as completed only when their row sits on the
// current batch with a completed status.
func (s *SemesterSettingsService) CompletionSummary(ctx context.Context) (dto.TrainerCompletionSummary, error) {
	cycle, err := s.cycles.GetActiveCycle(ctx)
	if err != nil {
		return dto.TrainerCompletionSummary{}, err
	}

	rows, err := s.repo.ListWithTrainers(ctx)
	if err != nil {
		return dto.TrainerCompletionSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semester settings")
	}

	summary := dto.TrainerCompletionSummary{
		Batch:    cycle.CurrentBatch,
		Total:    len(rows),
		Trainers: make([]dto.TrainerCompletion, 0, len(rows)),
	}
	for _, row := range rows {
		if row.ActiveBatch == cycle.CurrentBatch && row.SemesterStatus == models.SemesterStatusCompleted {
			summary.Completed++
		}
		summary.Trainers = append(summary.Trainers, dto.TrainerCompletion{
			TrainerID:         row.TrainerID,
			FullName:          row.FullName,
			ActiveBatch:       row.ActiveBatch,
			ActiveSemester:    row.ActiveSemester,
			SemesterStatus:    row.SemesterStatus,
			CompletedSemester: row.CompletedSemester,
			CompletedAt:       row.CompletedAt,
		})
	}
	summary.AllCompleted = summary.Completed == summary.Total
	return summary, nil
}

// EndBatch is the admin rollover workflow: every trainer must have reported
// completion before the batch cycle itself is progressed, after which all
// trainer rows are reset onto the new batch. The cycle's own all-semesters
// precondition is still enforced by the progression call.
func (s *SemesterSettingsService) EndBatch(ctx context.Context) (dto.ProgressResult, error) {
	summary, err := s.CompletionSummary(ctx)
	if err != nil {
		return dto.ProgressResult{}, err
	}
	if !summary.AllCompleted {
		return dto.ProgressResult{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "not all trainers have completed the current semester")
	}

	result, err := s.cycles.ProgressToNextBatch(ctx)
	if err != nil {
		return dto.ProgressResult{}, err
	}

	if err := s.repo.ResetForBatch(ctx, result.CurrentBatch); err != nil {
		// The cycle already rolled over; report the partial failure
		// rather than attempting to undo the progression.
		s.logger.Error("failed to reset trainer settings after rollover", zap.Error(err))
		return dto.ProgressResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "batch progressed but trainer settings reset failed")
	}

	return result, nil
}
