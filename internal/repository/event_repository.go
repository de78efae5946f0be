package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/learnhub/lms-portal-api/internal/models"
)

const eventColumns = "id, title, category, start_date, end_date, start_time, end_time, batch, trimester, status, batch_activated, created_at, updated_at"

// EventRepository handles persistence for enrollment events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository instantiates an event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events matching provided filters.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.EnrollmentEvent, int, error) {
	base := "FROM events WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Batch != "" {
		conditions = append(conditions, fmt.Sprintf("batch = $%d", len(args)+1))
		args = append(args, filter.Batch)
	}
	if filter.Trimester != "" {
		conditions = append(conditions, fmt.Sprintf("trimester = $%d", len(args)+1))
		args = append(args, filter.Trimester)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"title":      true,
		"start_date": true,
		"end_date":   true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", eventColumns, base, sortBy, order, size, offset)

	var events []models.EnrollmentEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	return events, total, nil
}

// FindByID loads an event by identifier.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM events WHERE id = $1", eventColumns)
	var event models.EnrollmentEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListOpenWindows returns active enrollment events whose date range covers
// the provided day. A null end_date counts as ending the same day it starts.
func (r *EventRepository) ListOpenWindows(ctx context.Context, day time.Time) ([]models.EnrollmentEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM events
		WHERE category = $1 AND status = $2
		AND start_date <= $3 AND COALESCE(end_date, start_date) >= $3
		ORDER BY start_date ASC, created_at ASC`, eventColumns)

	var events []models.EnrollmentEvent
	if err := r.db.SelectContext(ctx, &events, query, models.EventCategoryEnrollment, models.EventStatusActive, day); err != nil {
		return nil, fmt.Errorf("list open enrollment windows: %w", err)
	}
	return events, nil
}

// FindNextUpcoming returns the earliest active enrollment event starting
// after the provided day, or sql.ErrNoRows when none is scheduled.
func (r *EventRepository) FindNextUpcoming(ctx context.Context, day time.Time) (*models.EnrollmentEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM events
		WHERE category = $1 AND status = $2 AND start_date > $3
		ORDER BY start_date ASC, created_at ASC LIMIT 1`, eventColumns)

	var event models.EnrollmentEvent
	if err := r.db.GetContext(ctx, &event, query, models.EventCategoryEnrollment, models.EventStatusActive, day); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListActivationCandidates returns active enrollment events that have never
// triggered a batch and whose window ends on or before the provided day.
// Whether a same-day window has actually passed its cutoff time is decided
// by the caller, which knows the current clock.
func (r *EventRepository) ListActivationCandidates(ctx context.Context, day time.Time) ([]models.EnrollmentEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM events
		WHERE category = $1 AND status = $2 AND batch_activated = FALSE
		AND COALESCE(end_date, start_date) <= $3
		ORDER BY COALESCE(end_date, start_date) ASC, created_at ASC`, eventColumns)

	var events []models.EnrollmentEvent
	if err := r.db.SelectContext(ctx, &events, query, models.EventCategoryEnrollment, models.EventStatusActive, day); err != nil {
		return nil, fmt.Errorf("list activation candidates: %w", err)
	}
	return events, nil
}

// Create inserts a new event record.
func (r *EventRepository) Create(ctx context.Context, event *models.EnrollmentEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `INSERT INTO events (id, title, category, start_date, end_date, start_time, end_time, batch, trimester, status, batch_activated, created_at, updated_at)
		VALUES (:id, :title, :category, :start_date, :end_date, :start_time, :end_time, :batch, :trimester, :status, :batch_activated, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update modifies an existing event.
func (r *EventRepository) Update(ctx context.Context, event *models.EnrollmentEvent) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET title = :title, category = :category, start_date = :start_date, end_date = :end_date,
		start_time = :start_time, end_time = :end_time, batch = :batch, trimester = :trimester, status = :status, updated_at = :updated_at
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes an event permanently.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
