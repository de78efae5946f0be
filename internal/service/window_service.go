package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/learnhub/lms-portal-api/internal/dto"
	"github.com/learnhub/lms-portal-api/internal/models"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
)

type windowEventRepository interface {
	ListOpenWindows(ctx context.Context, day time.Time) ([]models.EnrollmentEvent, error)
	FindNextUpcoming(ctx context.Context, day time.Time) (*models.EnrollmentEvent, error)
}

type activeCycleReader interface {
	GetActiveCycle(ctx context.Context) (*models.BatchCycle, error)
}

const windowCacheKey = "enrollment:window"

// WindowService answers "is enrollment open right now, and if not, when
// next". It never mutates anything and is safe to call at any frequency.
type WindowService struct {
	events windowEventRepository
	cycles activeCycleReader
	cache  *CacheService
	logger *zap.Logger
}

// NewWindowService creates a window evaluator.
func NewWindowService(events windowEventRepository, cycles activeCycleReader, cache *CacheService, logger *zap.Logger) *WindowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowService{events: events, cycles: cycles, cache: cache, logger: logger}
}

// Evaluate inspects active enrollment events against the provided wall-clock
// time. The first event that has started and not yet ended wins; otherwise
// the earliest upcoming event is reported. The answer is cached briefly;
// boundary flips therefore lag by at most the cache TTL.
func (s *WindowService) Evaluate(ctx context.Context, now time.Time) (dto.EnrollmentWindow, error) {
	var cached dto.EnrollmentWindow
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, windowCacheKey, &cached); hit {
			return cached, nil
		}
	}

	window, err := s.evaluate(ctx, now)
	if err != nil {
		return dto.EnrollmentWindow{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, windowCacheKey, window, 0)
	}
	return window, nil
}

func (s *WindowService) evaluate(ctx context.Context, now time.Time) (dto.EnrollmentWindow, error) {
	today := dateOf(now)

	candidates, err := s.events.ListOpenWindows(ctx, today)
	if err != nil {
		return dto.EnrollmentWindow{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment events")
	}

	for i := range candidates {
		event := candidates[i]
		if eventStarted(event, now) && !eventEnded(event, now) {
			message, err := s.openMessage(ctx, event)
			if err != nil {
				return dto.EnrollmentWindow{}, err
			}
			return dto.EnrollmentWindow{Open: true, Message: message, Event: &event}, nil
		}
	}

	upcoming, err := s.events.FindNextUpcoming(ctx, today)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dto.EnrollmentWindow{Open: false, Message: "No enrollment is currently scheduled."}, nil
		}
		return dto.EnrollmentWindow{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upcoming enrollment events")
	}

	message := fmt.Sprintf("Enrollment is closed. The next window opens on %s", upcoming.StartDate.Format("January 2, 2006"))
	if upcoming.StartTime != nil {
		message += " at " + *upcoming.StartTime
	}
	message += "."
	return dto.EnrollmentWindow{Open: false, Message: message}, nil
}

func (s *WindowService) openMessage(ctx context.Context, event models.EnrollmentEvent) (string, error) {
	cycle, err := s.cycles.GetActiveCycle(ctx)
	if err != nil {
		return "", err
	}

	message := fmt.Sprintf("Enrollment for batch %s is open until %s", cycle.CurrentBatch, event.EffectiveEndDate().Format("January 2, 2006"))
	if event.EndTime != nil {
		message += " " + *event.EndTime
	}
	message += "."
	return message, nil
}

// eventStarted reports whether the window has opened by the given instant.
// A missing start time opens the window at the first second of its start
// date.
func eventStarted(event models.EnrollmentEvent, now time.Time) bool {
	today := dateOf(now)
	start := dateOf(event.StartDate)

	if start.Before(today) {
		return true
	}
	if !start.Equal(today) {
		return false
	}
	if event.StartTime == nil {
		return true
	}
	return clockMinutes(now) >= clockStringMinutes(*event.StartTime)
}

// eventEnded reports whether the window has closed by the given instant. On
// the window's final day it closes only after a non-null cutoff time has
// passed: an event without an end time never ends on its end date. This lets
// admins schedule all-day windows without a cutoff, so callers must not
// assume automatic midnight expiry. Once the final day itself is in the
// past, the window is over regardless of cutoff.
func eventEnded(event models.EnrollmentEvent, now time.Time) bool {
	today := dateOf(now)
	end := dateOf(event.EffectiveEndDate())

	if end.After(today) {
		return false
	}
	if end.Before(today) {
		return true
	}
	if event.EndTime == nil {
		return false
	}
	return clockMinutes(now) > clockStringMinutes(*event.EndTime)
}

// dateOf truncates an instant to its calendar day in the same location.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func clockMinutes(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// clockStringMinutes parses an HH:MM (or HH:MM:SS) clock string. Malformed
// values collapse to zero, i.e. midnight.
func clockStringMinutes(clock string) int {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if parsed, err := time.Parse(layout, clock); err == nil {
			return clockMinutes(parsed)
		}
	}
	return 0
}
