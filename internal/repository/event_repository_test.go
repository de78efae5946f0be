package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lms-portal-api/internal/models"
)

func eventRows(id, title string, start time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "category", "start_date", "end_date", "start_time", "end_time", "batch", "trimester", "status", "batch_activated", "created_at", "updated_at"}).
		AddRow(id, title, "enrollment", start, nil, nil, nil, nil, nil, "active", false, start, start)
}

func TestListEventsWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, category, start_date, end_date, start_time, end_time, batch, trimester, status, batch_activated, created_at, updated_at FROM events WHERE 1=1 AND category = $1 AND status = $2 ORDER BY start_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("enrollment", "active").
		WillReturnRows(eventRows("e1", "June intake", start))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE 1=1 AND category = $1 AND status = $2")).
		WithArgs("enrollment", "active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	events, total, err := repo.List(context.Background(), models.EventFilter{
		Category: models.EventCategoryEnrollment,
		Status:   models.EventStatusActive,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "June intake", events[0].Title)
	assert.Nil(t, events[0].EndDate)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsRejectsUnknownSort(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	// An unlisted sort column must fall back to start_date instead of being
	// interpolated into the query.
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY start_date DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(eventRows("e1", "June intake", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.EventFilter{SortBy: "1; DROP TABLE events"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOpenWindows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	day := time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("COALESCE\\(end_date, start_date\\) >= ").
		WithArgs("enrollment", "active", day).
		WillReturnRows(eventRows("e1", "June intake", day))

	events, err := repo.ListOpenWindows(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActivationCandidates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	day := time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("batch_activated = FALSE").
		WithArgs("enrollment", "active", day).
		WillReturnRows(eventRows("e1", "June intake", day.AddDate(0, 0, -3)))

	events, err := repo.ListActivationCandidates(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].BatchActivated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEventGeneratesID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.EnrollmentEvent{
		Title:     "June intake",
		Category:  models.EventCategoryEnrollment,
		StartDate: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		Status:    models.EventStatusActive,
	}
	err := repo.Create(context.Background(), event)
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
