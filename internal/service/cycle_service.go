package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/learnhub/lms-portal-api/internal/dto"
	"github.com/learnhub/lms-portal-api/internal/models"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
)

const (
	cycleStatusCacheKey = "cycle:status"
	cycleCachePattern   = "cycle:*"
	windowCachePattern  = "enrollment:*"
)

type cycleRepository interface {
	ListActive(ctx context.Context) ([]models.BatchCycle, error)
	Create(ctx context.Context, cycle *models.BatchCycle) error
	DeactivateExcept(ctx context.Context, keepID string) error
	ActivateFromEvent(ctx context.Context, cycleID, eventID string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, cycle *models.BatchCycle) error
	ProgressToNextBatch(ctx context.Context, cycleID, nextBatch string) error
}

type activationEventRepository interface {
	ListActivationCandidates(ctx context.Context, day time.Time) ([]models.EnrollmentEvent, error)
}

// CycleService drives the batch lifecycle: waiting_enrollment → batch_active
// → trimester_completed → waiting_enrollment, with the batch ring advancing
// 1→2→3→1 on each rollover.
type CycleService struct {
	repo      cycleRepository
	events    activationEventRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
	now       func() time.Time
}

// NewCycleService creates a new cycle service instance.
func NewCycleService(repo cycleRepository, events activationEventRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, location *time.Location) *CycleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.Local
	}
	return &CycleService{
		repo:      repo,
		events:    events,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		location:  location,
		now:       time.Now,
	}
}

// GetActiveCycle returns the single authoritative cycle record, creating the
// default one on first access. When duplicates exist from a past race the
// newest row wins and the rest are deactivated.
func (s *CycleService) GetActiveCycle(ctx context.Context) (*models.BatchCycle, error) {
	cycles, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch cycle")
	}

	if len(cycles) == 0 {
		cycle := models.NewDefaultCycle()
		if err := s.repo.Create(ctx, cycle); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch cycle")
		}
		s.logger.Info("created default batch cycle", zap.String("cycle_id", cycle.ID))
		return cycle, nil
	}

	newest := cycles[0]
	if len(cycles) > 1 {
		s.logger.Warn("multiple active batch cycles found, keeping newest",
			zap.Int("count", len(cycles)), zap.String("kept", newest.ID))
		if err := s.repo.DeactivateExcept(ctx, newest.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile batch cycles")
		}
	}
	return &newest, nil
}

// Status returns the cycle summary, served from cache when possible.
func (s *CycleService) Status(ctx context.Context) (dto.CycleStatus, error) {
	var cached dto.CycleStatus
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, cycleStatusCacheKey, &cached); hit {
			return cached, nil
		}
	}

	cycle, err := s.GetActiveCycle(ctx)
	if err != nil {
		return dto.CycleStatus{}, err
	}

	status := dto.NewCycleStatus(cycle)
	if s.cache != nil {
		_ = s.cache.Set(ctx, cycleStatusCacheKey, status, 0)
	}
	return status, nil
}

// CheckEnrollmentEvents runs one polling pass: find ended, never-activated
// enrollment events and activate the batch from the first match. At most one
// event is consumed per pass even when several qualify, so two batches can
// never start from a single tick.
func (s *CycleService) CheckEnrollmentEvents(ctx context.Context) (dto.CheckEventsResult, error) {
	cycle, err := s.GetActiveCycle(ctx)
	if err != nil {
		return dto.CheckEventsResult{}, err
	}

	if !cycle.CanStartEnrollment() {
		return dto.CheckEventsResult{Activated: 0, Cycle: dto.NewCycleStatus(cycle)}, nil
	}

	now := s.now().In(s.location)
	candidates, err := s.events.ListActivationCandidates(ctx, dateOf(now))
	if err != nil {
		return dto.CheckEventsResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment events")
	}

	for i := range candidates {
		event := candidates[i]
		if !eventEnded(event, now) {
			continue
		}

		if err := s.repo.ActivateFromEvent(ctx, cycle.ID, event.ID, s.now().UTC()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Another pass won the conditional write; treat this
				// tick as a no-op.
				s.logger.Warn("batch activation lost conditional write",
					zap.String("cycle_id", cycle.ID), zap.String("event_id", event.ID))
				break
			}
			return dto.CheckEventsResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate batch")
		}

		s.logger.Info("batch activated from enrollment event",
			zap.String("event_id", event.ID), zap.String("batch", cycle.CurrentBatch))
		if s.metrics != nil {
			s.metrics.RecordBatchActivation()
		}
		s.invalidateCaches(ctx)

		event.BatchActivated = true
		event.Status = models.EventStatusCompleted

		refreshed, err := s.GetActiveCycle(ctx)
		if err != nil {
			return dto.CheckEventsResult{}, err
		}
		return dto.CheckEventsResult{Activated: 1, Event: &event, Cycle: dto.NewCycleStatus(refreshed)}, nil
	}

	return dto.CheckEventsResult{Activated: 0, Cycle: dto.NewCycleStatus(cycle)}, nil
}

// CompleteSemester marks one semester done within the current batch. The
// call is idempotent: repeating a completed semester only re-stamps the
// completion time. Once all three are done the cycle moves to
// trimester_completed.
func (s *CycleService) CompleteSemester(ctx context.Context, req dto.CompleteSemesterRequest) (dto.CompleteSemesterResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CompleteSemesterResult{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "semester must be one of 1, 2 or 3")
	}

	cycle, err := s.GetActiveCycle(ctx)
	if err != nil {
		return dto.CompleteSemesterResult{}, err
	}

	if cycle.CycleState != models.CycleStateBatchActive {
		return dto.CompleteSemesterResult{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "no batch is active; semesters can only be completed while a batch is running")
	}

	if cycle.CompletedSemesters == nil {
		cycle.CompletedSemesters = models.NewCompletedSemesters()
	}
	cycle.CompletedSemesters[req.Semester] = true
	completedAt := s.now().UTC()
	cycle.LastSemesterCompletedAt = &completedAt

	allDone := cycle.CompletedSemesters.AllDone()
	if allDone {
		cycle.CycleState = models.CycleStateTrimesterCompleted
	}

	if err := s.repo.UpdateProgress(ctx, cycle); err != nil {
		return dto.CompleteSemesterResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist semester completion")
	}

	if s.metrics != nil {
		s.metrics.RecordSemesterCompletion()
	}
	s.invalidateCaches(ctx)

	return dto.CompleteSemesterResult{
		CompletedSemesters: cycle.CompletedSemesters,
		CycleState:         cycle.CycleState,
		AllCompleted:       allDone,
	}, nil
}

// ProgressToNextBatch advances the ring once every semester is complete and
// resets the cycle to wait for the next enrollment window.
func (s *CycleService) ProgressToNextBatch(ctx context.Context) (dto.ProgressResult, error) {
	cycle, err := s.GetActiveCycle(ctx)
	if err != nil {
		return dto.ProgressResult{}, err
	}

	if !cycle.CompletedSemesters.AllDone() {
		return dto.ProgressResult{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "all semesters must be completed before progressing to the next batch")
	}

	previous := cycle.CurrentBatch
	next := models.NextBatch(previous)

	if err := s.repo.ProgressToNextBatch(ctx, cycle.ID, next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dto.ProgressResult{}, appErrors.Clone(appErrors.ErrConflict, "batch cycle changed during progression")
		}
		return dto.ProgressResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to progress batch cycle")
	}

	s.logger.Info("batch cycle progressed", zap.String("from", previous), zap.String("to", next))
	if s.metrics != nil {
		s.metrics.RecordBatchRollover()
	}
	s.invalidateCaches(ctx)

	refreshed, err := s.GetActiveCycle(ctx)
	if err != nil {
		return dto.ProgressResult{}, err
	}
	return dto.ProgressResult{
		PreviousBatch: previous,
		CurrentBatch:  next,
		Cycle:         dto.NewCycleStatus(refreshed),
	}, nil
}

func (s *CycleService) invalidateCaches(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, cycleCachePattern)
	_ = s.cache.Invalidate(ctx, windowCachePattern)
}
