package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lms-portal-api/internal/models"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
	"github.com/learnhub/lms-portal-api/pkg/storage"
)

type mockEventStore struct {
	events  []models.EnrollmentEvent
	created *models.EnrollmentEvent
	updated *models.EnrollmentEvent
	deleted string
}

func (m *mockEventStore) List(ctx context.Context, filter models.EventFilter) ([]models.EnrollmentEvent, int, error) {
	return m.events, len(m.events), nil
}

func (m *mockEventStore) FindByID(ctx context.Context, id string) (*models.EnrollmentEvent, error) {
	for i := range m.events {
		if m.events[i].ID == id {
			copied := m.events[i]
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEventStore) Create(ctx context.Context, event *models.EnrollmentEvent) error {
	if event.ID == "" {
		event.ID = "new-event"
	}
	m.created = event
	m.events = append(m.events, *event)
	return nil
}

func (m *mockEventStore) Update(ctx context.Context, event *models.EnrollmentEvent) error {
	m.updated = event
	return nil
}

func (m *mockEventStore) Delete(ctx context.Context, id string) error {
	m.deleted = id
	return nil
}

func TestCreateEventNormalizesSchedule(t *testing.T) {
	store := &mockEventStore{}
	svc := NewEventService(store, nil, ExportOptions{}, nil, nil)

	end := "2025-06-10"
	startTime := "09:00:00"
	event, err := svc.Create(context.Background(), CreateEventRequest{
		Title:     "June intake",
		Category:  "enrollment",
		StartDate: "2025-06-01",
		EndDate:   &end,
		StartTime: &startTime,
	})
	require.NoError(t, err)
	assert.Equal(t, day(2025, 6, 1), event.StartDate)
	require.NotNil(t, event.EndDate)
	assert.Equal(t, day(2025, 6, 10), *event.EndDate)
	require.NotNil(t, event.StartTime)
	assert.Equal(t, "09:00", *event.StartTime, "seconds are dropped from clock values")
	assert.Equal(t, models.EventStatusActive, event.Status)
	assert.False(t, event.BatchActivated)
}

func TestCreateEventRejectsInvertedRange(t *testing.T) {
	svc := NewEventService(&mockEventStore{}, nil, ExportOptions{}, nil, nil)

	end := "2025-05-31"
	_, err := svc.Create(context.Background(), CreateEventRequest{
		Title:     "Broken",
		Category:  "enrollment",
		StartDate: "2025-06-01",
		EndDate:   &end,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateEventRejectsBadClock(t *testing.T) {
	svc := NewEventService(&mockEventStore{}, nil, ExportOptions{}, nil, nil)

	badClock := "25:99"
	_, err := svc.Create(context.Background(), CreateEventRequest{
		Title:     "Broken",
		Category:  "enrollment",
		StartDate: "2025-06-01",
		EndTime:   &badClock,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateEventKeepsActivationFlag(t *testing.T) {
	store := &mockEventStore{events: []models.EnrollmentEvent{{
		ID:             "e1",
		Title:          "June intake",
		Category:       models.EventCategoryEnrollment,
		StartDate:      day(2025, 6, 1),
		Status:         models.EventStatusCompleted,
		BatchActivated: true,
	}}}
	svc := NewEventService(store, nil, ExportOptions{}, nil, nil)

	event, err := svc.Update(context.Background(), "e1", UpdateEventRequest{
		Title:     "June intake (revised)",
		Category:  "enrollment",
		StartDate: "2025-06-02",
	})
	require.NoError(t, err)
	assert.True(t, event.BatchActivated, "a spent event stays spent through edits")
	assert.Equal(t, "June intake (revised)", event.Title)
}

func TestExportCSV(t *testing.T) {
	store := &mockEventStore{events: []models.EnrollmentEvent{{
		ID:        "e1",
		Title:     "June intake",
		Category:  models.EventCategoryEnrollment,
		StartDate: day(2025, 6, 1),
		Status:    models.EventStatusActive,
	}}}
	svc := NewEventService(store, nil, ExportOptions{}, nil, nil)

	result, err := svc.Export(context.Background(), models.EventFilter{}, ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	body := string(result.Content)
	assert.Contains(t, body, "Title,Category,Start Date")
	assert.Contains(t, body, "June intake,enrollment,2025-06-01")
}

func TestExportPDF(t *testing.T) {
	store := &mockEventStore{events: []models.EnrollmentEvent{{
		ID:        "e1",
		Title:     "June intake",
		Category:  models.EventCategoryEnrollment,
		StartDate: day(2025, 6, 1),
		Status:    models.EventStatusActive,
	}}}
	svc := NewEventService(store, nil, ExportOptions{}, nil, nil)

	result, err := svc.Export(context.Background(), models.EventFilter{}, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasPrefix(string(result.Content), "%PDF"))
}

func TestExportArchivesAndResolvesDownload(t *testing.T) {
	store := &mockEventStore{events: []models.EnrollmentEvent{{
		ID:        "e1",
		Title:     "June intake",
		Category:  models.EventCategoryEnrollment,
		StartDate: day(2025, 6, 1),
		Status:    models.EventStatusActive,
	}}}

	local, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc := NewEventService(store, nil, ExportOptions{
		Store:  local,
		Signer: storage.NewSigner("secret", time.Hour),
	}, nil, nil)

	result, err := svc.Export(context.Background(), models.EventFilter{}, ExportFormatCSV)
	require.NoError(t, err)
	require.NotEmpty(t, result.DownloadURL)
	require.NotNil(t, result.ExpiresAt)

	parts := strings.Split(result.DownloadURL, "/")
	token := parts[len(parts)-1]

	download, err := svc.ResolveDownload(token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, result.Filename, download.Filename)
	assert.Equal(t, "text/csv", download.ContentType)
	assert.Equal(t, int64(len(result.Content)), download.SizeBytes)

	_, err = svc.ResolveDownload("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestExportUnknownFormat(t *testing.T) {
	svc := NewEventService(&mockEventStore{}, nil, ExportOptions{}, nil, nil)

	_, err := svc.Export(context.Background(), models.EventFilter{}, ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
