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
	"github.com/learnhub/lms-portal-api/internal/repository"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
)

type mockSettingsRepo struct {
	byTrainer map[string]*models.ActiveSemesterSettings
	rows      []repository.SettingsWithTrainer

	created    *models.ActiveSemesterSettings
	updated    *models.ActiveSemesterSettings
	resetBatch string
}

func (m *mockSettingsRepo) FindByTrainer(ctx context.Context, trainerID string) (*models.ActiveSemesterSettings, error) {
	if s, ok := m.byTrainer[trainerID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSettingsRepo) Create(ctx context.Context, settings *models.ActiveSemesterSettings) error {
	if settings.ID == "" {
		settings.ID = "new-settings"
	}
	if m.byTrainer == nil {
		m.byTrainer = make(map[string]*models.ActiveSemesterSettings)
	}
	m.byTrainer[settings.TrainerID] = settings
	m.created = settings
	return nil
}

func (m *mockSettingsRepo) Update(ctx context.Context, settings *models.ActiveSemesterSettings) error {
	m.byTrainer[settings.TrainerID] = settings
	m.updated = settings
	return nil
}

func (m *mockSettingsRepo) ListWithTrainers(ctx context.Context) ([]repository.SettingsWithTrainer, error) {
	return m.rows, nil
}

func (m *mockSettingsRepo) ResetForBatch(ctx context.Context, batch string) error {
	m.resetBatch = batch
	return nil
}

type mockProgressor struct {
	cycle       *models.BatchCycle
	progressed  bool
	progressRes dto.ProgressResult
}

func (m *mockProgressor) GetActiveCycle(ctx context.Context) (*models.BatchCycle, error) {
	if m.cycle != nil {
		return m.cycle, nil
	}
	return models.NewDefaultCycle(), nil
}

func (m *mockProgressor) ProgressToNextBatch(ctx context.Context) (dto.ProgressResult, error) {
	m.progressed = true
	return m.progressRes, nil
}

func completedRow(trainerID, name, batch string) repository.SettingsWithTrainer {
	completedAt := time.Now().UTC()
	semester := models.Semester3
	return repository.SettingsWithTrainer{
		ActiveSemesterSettings: models.ActiveSemesterSettings{
			TrainerID:         trainerID,
			ActiveBatch:       batch,
			ActiveSemester:    semester,
			SemesterStatus:    models.SemesterStatusCompleted,
			CompletedSemester: &semester,
			CompletedAt:       &completedAt,
		},
		FullName: name,
	}
}

func ongoingRow(trainerID, name, batch string) repository.SettingsWithTrainer {
	return repository.SettingsWithTrainer{
		ActiveSemesterSettings: models.ActiveSemesterSettings{
			TrainerID:      trainerID,
			ActiveBatch:    batch,
			ActiveSemester: models.Semester1,
			SemesterStatus: models.SemesterStatusOngoing,
		},
		FullName: name,
	}
}

func TestGetForTrainerLazilyCreates(t *testing.T) {
	repo := &mockSettingsRepo{}
	cycle := models.NewDefaultCycle()
	cycle.CurrentBatch = "2"
	cycle.CurrentSemester = "1"
	svc := NewSemesterSettingsService(repo, &mockProgressor{cycle: cycle}, nil)

	settings, err := svc.GetForTrainer(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, "t1", settings.TrainerID)
	assert.Equal(t, "2", settings.ActiveBatch, "new rows adopt the active cycle's batch")
	assert.Equal(t, models.SemesterStatusOngoing, settings.SemesterStatus)
}

func TestCompleteOwnSemester(t *testing.T) {
	repo := &mockSettingsRepo{byTrainer: map[string]*models.ActiveSemesterSettings{
		"t1": {ID: "s1", TrainerID: "t1", ActiveBatch: "1", ActiveSemester: "2", SemesterStatus: models.SemesterStatusOngoing},
	}}
	svc := NewSemesterSettingsService(repo, &mockProgressor{}, nil)
	fixed := at(2025, time.June, 5, 12, 0)
	svc.now = func() time.Time { return fixed }

	settings, err := svc.CompleteOwnSemester(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.SemesterStatusCompleted, settings.SemesterStatus)
	require.NotNil(t, settings.CompletedSemester)
	assert.Equal(t, "2", *settings.CompletedSemester)
	require.NotNil(t, settings.CompletedAt)
	assert.Equal(t, fixed, *settings.CompletedAt)
}

func TestCompletionSummaryCountsCurrentBatchOnly(t *testing.T) {
	cycle := models.NewDefaultCycle()
	cycle.CurrentBatch = "2"
	repo := &mockSettingsRepo{rows: []repository.SettingsWithTrainer{
		completedRow("t1", "Ana", "2"),
		completedRow("t2", "Ben", "1"), // stale row from the previous batch
		ongoingRow("t3", "Cara", "2"),
	}}
	svc := NewSemesterSettingsService(repo, &mockProgressor{cycle: cycle}, nil)

	summary, err := svc.CompletionSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", summary.Batch)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Completed, "completion on an old batch does not count")
	assert.False(t, summary.AllCompleted)
	assert.Len(t, summary.Trainers, 3)
}

func TestEndBatchBlockedUntilAllComplete(t *testing.T) {
	cycle := models.NewDefaultCycle()
	progressor := &mockProgressor{cycle: cycle}
	repo := &mockSettingsRepo{rows: []repository.SettingsWithTrainer{
		completedRow("t1", "Ana", "1"),
		ongoingRow("t2", "Ben", "1"),
	}}
	svc := NewSemesterSettingsService(repo, progressor, nil)

	_, err := svc.EndBatch(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.False(t, progressor.progressed)
	assert.Empty(t, repo.resetBatch)
}

func TestEndBatchProgressesAndResets(t *testing.T) {
	cycle := models.NewDefaultCycle()
	progressor := &mockProgressor{
		cycle:       cycle,
		progressRes: dto.ProgressResult{PreviousBatch: "1", CurrentBatch: "2"},
	}
	repo := &mockSettingsRepo{rows: []repository.SettingsWithTrainer{
		completedRow("t1", "Ana", "1"),
		completedRow("t2", "Ben", "1"),
	}}
	svc := NewSemesterSettingsService(repo, progressor, nil)

	result, err := svc.EndBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, progressor.progressed)
	assert.Equal(t, "2", result.CurrentBatch)
	assert.Equal(t, "2", repo.resetBatch, "trainer rows reset onto the new batch")
}
