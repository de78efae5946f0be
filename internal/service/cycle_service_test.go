package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lms-portal-api/internal/dto"
	"github.com/learnhub/lms-portal-api/internal/models"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
)

type mockCycleRepo struct {
	cycles []models.BatchCycle

	created         *models.BatchCycle
	deactivatedKeep string
	updated         *models.BatchCycle

	activateErr     error
	activatedEvent  string
	activateCalls   int
	progressErr     error
	progressedBatch string
}

func (m *mockCycleRepo) ListActive(ctx context.Context) ([]models.BatchCycle, error) {
	out := make([]models.BatchCycle, len(m.cycles))
	copy(out, m.cycles)
	return out, nil
}

func (m *mockCycleRepo) Create(ctx context.Context, cycle *models.BatchCycle) error {
	if cycle.ID == "" {
		cycle.ID = "new-cycle"
	}
	m.created = cycle
	m.cycles = append(m.cycles, *cycle)
	return nil
}

func (m *mockCycleRepo) DeactivateExcept(ctx context.Context, keepID string) error {
	m.deactivatedKeep = keepID
	kept := m.cycles[:0]
	for _, c := range m.cycles {
		if c.ID == keepID {
			kept = append(kept, c)
		}
	}
	m.cycles = kept
	return nil
}

func (m *mockCycleRepo) ActivateFromEvent(ctx context.Context, cycleID, eventID string, startedAt time.Time) error {
	m.activateCalls++
	if m.activateErr != nil {
		return m.activateErr
	}
	m.activatedEvent = eventID
	for i := range m.cycles {
		if m.cycles[i].ID == cycleID {
			m.cycles[i].CycleState = models.CycleStateBatchActive
			m.cycles[i].ActiveEnrollmentEventID = &eventID
			m.cycles[i].BatchStartedAt = &startedAt
			m.cycles[i].CurrentSemester = models.Semester1
			m.cycles[i].CompletedSemesters = models.NewCompletedSemesters()
		}
	}
	return nil
}

func (m *mockCycleRepo) UpdateProgress(ctx context.Context, cycle *models.BatchCycle) error {
	m.updated = cycle
	for i := range m.cycles {
		if m.cycles[i].ID == cycle.ID {
			m.cycles[i] = *cycle
		}
	}
	return nil
}

func (m *mockCycleRepo) ProgressToNextBatch(ctx context.Context, cycleID, nextBatch string) error {
	if m.progressErr != nil {
		return m.progressErr
	}
	m.progressedBatch = nextBatch
	for i := range m.cycles {
		if m.cycles[i].ID == cycleID {
			m.cycles[i].CurrentBatch = nextBatch
			m.cycles[i].CycleState = models.CycleStateWaitingEnrollment
			m.cycles[i].CurrentSemester = models.Semester1
			m.cycles[i].CompletedSemesters = models.NewCompletedSemesters()
			m.cycles[i].ActiveEnrollmentEventID = nil
		}
	}
	return nil
}

type mockActivationEvents struct {
	candidates []models.EnrollmentEvent
	calls      int
}

func (m *mockActivationEvents) ListActivationCandidates(ctx context.Context, day time.Time) ([]models.EnrollmentEvent, error) {
	m.calls++
	return m.candidates, nil
}

func newCycleService(repo *mockCycleRepo, events *mockActivationEvents, now time.Time) *CycleService {
	svc := NewCycleService(repo, events, nil, nil, nil, nil, time.UTC)
	svc.now = func() time.Time { return now }
	return svc
}

func waitingCycle(id, batch string) models.BatchCycle {
	return models.BatchCycle{
		ID:                 id,
		CurrentBatch:       batch,
		CycleState:         models.CycleStateWaitingEnrollment,
		CurrentSemester:    models.Semester1,
		CompletedSemesters: models.NewCompletedSemesters(),
		IsActive:           true,
	}
}

func TestGetActiveCycleCreatesDefault(t *testing.T) {
	repo := &mockCycleRepo{}
	svc := newCycleService(repo, &mockActivationEvents{}, at(2025, time.June, 5, 12, 0))

	cycle, err := svc.GetActiveCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.Batch1, cycle.CurrentBatch)
	assert.Equal(t, models.CycleStateWaitingEnrollment, cycle.CycleState)
	assert.True(t, cycle.CanStartEnrollment())
}

func TestGetActiveCycleReconcilesDuplicates(t *testing.T) {
	repo := &mockCycleRepo{cycles: []models.BatchCycle{
		waitingCycle("newest", "2"),
		waitingCycle("older", "1"),
	}}
	svc := newCycleService(repo, &mockActivationEvents{}, at(2025, time.June, 5, 12, 0))

	cycle, err := svc.GetActiveCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "newest", cycle.ID)
	assert.Equal(t, "newest", repo.deactivatedKeep)
}

func TestCheckEventsSkipsWhenBatchActive(t *testing.T) {
	active := waitingCycle("c1", "1")
	active.CycleState = models.CycleStateBatchActive
	repo := &mockCycleRepo{cycles: []models.BatchCycle{active}}
	events := &mockActivationEvents{}
	svc := newCycleService(repo, events, at(2025, time.June, 5, 12, 0))

	result, err := svc.CheckEnrollmentEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Activated)
	assert.Equal(t, 0, events.calls, "a running batch never polls for events")
}

func TestCheckEventsActivatesFirstEndedCandidate(t *testing.T) {
	repo := &mockCycleRepo{cycles: []models.BatchCycle{waitingCycle("c1", "1")}}
	events := &mockActivationEvents{candidates: []models.EnrollmentEvent{
		{ID: "e1", Category: models.EventCategoryEnrollment, StartDate: day(2025, time.June, 1), EndDate: timePtr(day(2025, time.June, 3)), Status: models.EventStatusActive},
		{ID: "e2", Category: models.EventCategoryEnrollment, StartDate: day(2025, time.June, 2), EndDate: timePtr(day(2025, time.June, 4)), Status: models.EventStatusActive},
	}}
	svc := newCycleService(repo, events, at(2025, time.June, 5, 12, 0))

	result, err := svc.CheckEnrollmentEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Activated)
	assert.Equal(t, 1, repo.activateCalls, "only one event may activate per pass")
	assert.Equal(t, "e1", repo.activatedEvent)
	require.NotNil(t, result.Event)
	assert.True(t, result.Event.BatchActivated)
	assert.Equal(t, models.EventStatusCompleted, result.Event.Status)
	assert.Equal(t, models.CycleStateBatchActive, result.Cycle.CycleState)
}

func TestCheckEventsRespectsSameDayCutoff(t *testing.T) {
	repo := &mockCycleRepo{cycles: []models.BatchCycle{waitingCycle("c1", "1")}}
	events := &mockActivationEvents{candidates: []models.EnrollmentEvent{
		{ID: "e1", Category: models.EventCategoryEnrollment, StartDate: day(2025, time.June, 1), EndDate: timePtr(day(2025, time.June, 5)), EndTime: strPtr("18:00"), Status: models.EventStatusActive},
	}}
	svc := newCycleService(repo, events, at(2025, time.June, 5, 12, 0))

	result, err := svc.CheckEnrollmentEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Activated, "the window is still open until its cutoff time")
	assert.Equal(t, 0, repo.activateCalls)
}

func TestCheckEventsLostConditionalWrite(t *testing.T) {
	repo := &mockCycleRepo{
		cycles:      []models.BatchCycle{waitingCycle("c1", "1")},
		activateErr: sql.ErrNoRows,
	}
	events := &mockActivationEvents{candidates: []models.EnrollmentEvent{
		{ID: "e1", Category: models.EventCategoryEnrollment, StartDate: day(2025, time.June, 1), EndDate: timePtr(day(2025, time.June, 3)), Status: models.EventStatusActive},
	}}
	svc := newCycleService(repo, events, at(2025, time.June, 5, 12, 0))

	result, err := svc.CheckEnrollmentEvents(context.Background())
	require.NoError(t, err, "losing the guarded write is a no-op, not an error")
	assert.Equal(t, 0, result.Activated)
}

func TestCompleteSemesterRequiresActiveBatch(t *testing.T) {
	repo := &mockCycleRepo{cycles: []models.BatchCycle{waitingCycle("c1", "1")}}
	svc := newCycleService(repo, &mockActivationEvents{}, at(2025, time.June, 5, 12, 0))

	_, err := svc.CompleteSemester(context.Background(), dto.CompleteSemesterRequest{Semester: "1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCompleteSemesterValidation(t *testing.T) {
	active := waitingCycle("c1", "1")
	active.CycleState = models.CycleStateBatchActive
	repo := &mockCycleRepo{cycles: []models.BatchCycle{active}}
	svc := newCycleService(repo, &mockActivationEvents{}, at(2025, time.June, 5, 12, 0))

	_, err := svc.CompleteSemester(context.Background(), dto.CompleteSemesterRequest{Semester: "4"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCompleteSemesterIsIdempotent(t *testing.T) {
	active := waitingCycle("c1", "1")
	active.CycleState = models.CycleStateBatchActive
	active.CompletedSemesters = models.CompletedSemesters{"1": true, "2": false, "3": false}
	repo := &mockCycleRepo{cycles: []models.BatchCycle{active}}
	svc := newCycleService(repo, &mockActivationEvents{}, at(2025, time.June, 5, 12, 0))

	result, err := svc.CompleteSemester(context.Background(), dto.CompleteSemesterRequest{Semester: "1"})
	require.NoError(t, err)
	assert.True(t, result.CompletedSemesters["1"])
	assert.False(t, result.AllCompleted)
	assert.Equal(t, models.CycleStateBatchActive, result.CycleState)
}

func TestCompleteSemesterTransitionsWhenAllDone(t *testing.T) {
	active := waitingCycle("c1", "1")
	active.CycleState = models.CycleStateBatchActive
	active.CompletedSemesters = models.CompletedSemesters{"1": true, "2": true, "3": false}
	repo := &mockCycleRepo{cycles: []models.BatchCycle{active}}
	svc := newCycleService(repo, &mockActivationEvents{}, at(2025, time.June, 5, 12, 0))

	result, err := svc.CompleteSemester(context.Background(), dto.CompleteSemesterRequest{Semester: "3"})
	require.NoError(t, err)
	assert.True(t, result.AllCompleted)
	assert.Equal(t, models.CycleStateTrimesterCompleted, result.CycleState)
	require.NotNil(t, repo.updated)
	require.NotNil(t, repo.updated.LastSemesterCompletedAt)
}

func TestProgressRequiresAllSemesters(t *testing.T) {
	done := waitingCycle("c1", "1")
	done.CycleState = models.CycleStateTrimesterCompleted
	done.CompletedSemesters = models.CompletedSemesters{"1": true, "2": true, "3": false}
	repo := &mockCycleRepo{cycles: []models.BatchCycle{done}}
	svc := newCycleService(repo, &mockActivationEvents{}, at(2025, time.June, 5, 12, 0))

	_, err := svc.ProgressToNextBatch(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestProgressAdvancesRing(t *testing.T) {
	done := waitingCycle("c1", "3")
	done.CycleState = models.CycleStateTrimesterCompleted
	done.CompletedSemesters = models.CompletedSemesters{"1": true, "2": true, "3": true}
	repo := &mockCycleRepo{cycles: []models.BatchCycle{done}}
	svc := newCycleService(repo, &mockActivationEvents{}, at(2025, time.June, 5, 12, 0))

	result, err := svc.ProgressToNextBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3", result.PreviousBatch)
	assert.Equal(t, "1", result.CurrentBatch, "the ring wraps 3 back to 1")
	assert.Equal(t, "1", repo.progressedBatch)
	assert.Equal(t, models.CycleStateWaitingEnrollment, result.Cycle.CycleState)
	assert.True(t, result.Cycle.CanStartEnrollment)
}

func TestProgressConflictOnStaleState(t *testing.T) {
	done := waitingCycle("c1", "1")
	done.CycleState = models.CycleStateTrimesterCompleted
	done.CompletedSemesters = models.CompletedSemesters{"1": true, "2": true, "3": true}
	repo := &mockCycleRepo{cycles: []models.BatchCycle{done}, progressErr: sql.ErrNoRows}
	svc := newCycleService(repo, &mockActivationEvents{}, at(2025, time.June, 5, 12, 0))

	_, err := svc.ProgressToNextBatch(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
