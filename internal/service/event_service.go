package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/learnhub/lms-portal-api/internal/models"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
	"github.com/learnhub/lms-portal-api/pkg/export"
	"github.com/learnhub/lms-portal-api/pkg/storage"
)

type eventStore interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.EnrollmentEvent, int, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentEvent, error)
	Create(ctx context.Context, event *models.EnrollmentEvent) error
	Update(ctx context.Context, event *models.EnrollmentEvent) error
	Delete(ctx context.Context, id string) error
}

// CreateEventRequest describes payload for scheduling events. Dates use
// YYYY-MM-DD, clock fields use HH:MM.
type CreateEventRequest struct {
	Title     string  `json:"title" validate:"required"`
	Category  string  `json:"category" validate:"required,oneof=enrollment departmental"`
	StartDate string  `json:"start_date" validate:"required"`
	EndDate   *string `json:"end_date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Batch     *string `json:"batch"`
	Trimester *string `json:"trimester"`
}

// UpdateEventRequest updates mutable fields on an event.
type UpdateEventRequest struct {
	Title     string  `json:"title" validate:"required"`
	Category  string  `json:"category" validate:"required,oneof=enrollment departmental"`
	StartDate string  `json:"start_date" validate:"required"`
	EndDate   *string `json:"end_date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Batch     *string `json:"batch"`
	Trimester *string `json:"trimester"`
	Status    *string `json:"status" validate:"omitempty,oneof=active completed archived"`
}

// ExportFormat selects the report rendering.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries a rendered event report. DownloadURL is set only when
// report archiving is configured.
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
	DownloadURL string
	ExpiresAt   *time.Time
}

// ExportDownload is an open handle to an archived report file.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	SizeBytes   int64
}

type exportArchive interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportOptions wires optional on-disk archiving of generated reports. With a
// nil Store, exports stream inline and download links are never issued.
type ExportOptions struct {
	Store     *storage.LocalStore
	Signer    *storage.Signer
	APIPrefix string
	ResultTTL time.Duration
}

// EventService owns the admin event calendar.
type EventService struct {
	repo      eventStore
	cache     *CacheService
	archive   exportArchive
	signer    *storage.Signer
	apiPrefix string
	resultTTL time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService creates a new event service instance.
func NewEventService(repo eventStore, cache *CacheService, exports ExportOptions, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &EventService{
		repo:      repo,
		cache:     cache,
		signer:    exports.Signer,
		apiPrefix: exports.APIPrefix,
		resultTTL: exports.ResultTTL,
		validator: validate,
		logger:    logger,
	}
	if exports.Store != nil {
		s.archive = exports.Store
	}
	if s.resultTTL <= 0 {
		s.resultTTL = 24 * time.Hour
	}
	return s
}

// List returns paginated events.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.EnrollmentEvent, *models.Pagination, error) {
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return events, pagination, nil
}

// Get returns an event by ID.
func (s *EventService) Get(ctx context.Context, id string) (*models.EnrollmentEvent, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// Create schedules a new event. Fresh events always start active and have
// never triggered a batch.
func (s *EventService) Create(ctx context.Context, req CreateEventRequest) (*models.EnrollmentEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	event := &models.EnrollmentEvent{
		Title:          req.Title,
		Category:       models.EventCategory(req.Category),
		Batch:          req.Batch,
		Trimester:      req.Trimester,
		Status:         models.EventStatusActive,
		BatchActivated: false,
	}
	if err := s.applySchedule(event, req.StartDate, req.EndDate, req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.logger.Info("event created", zap.String("event_id", event.ID), zap.String("category", string(event.Category)))
	s.invalidateWindowCache(ctx)
	return event, nil
}

// Update modifies an event's schedule or status. The batch_activated flag is
// deliberately untouchable: once an event has started a batch it stays spent.
func (s *EventService) Update(ctx context.Context, id string, req UpdateEventRequest) (*models.EnrollmentEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	event.Title = req.Title
	event.Category = models.EventCategory(req.Category)
	event.Batch = req.Batch
	event.Trimester = req.Trimester
	if req.Status != nil {
		event.Status = models.EventStatus(*req.Status)
	}
	if err := s.applySchedule(event, req.StartDate, req.EndDate, req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}

	s.invalidateWindowCache(ctx)
	return event, nil
}

// Delete removes an event permanently.
func (s *EventService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	s.invalidateWindowCache(ctx)
	return nil
}

// Export renders the filtered event list as a downloadable report.
func (s *EventService) Export(ctx context.Context, filter models.EventFilter, format ExportFormat) (*ExportResult, error) {
	filter.Page = 1
	filter.PageSize = 100

	events, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events for export")
	}

	table := export.Table{
		Title:   "Event Schedule",
		Columns: []string{"Title", "Category", "Start Date", "End Date", "Start Time", "End Time", "Batch", "Status"},
		Rows:    make([][]string, 0, len(events)),
	}
	for _, event := range events {
		table.Rows = append(table.Rows, []string{
			event.Title,
			string(event.Category),
			event.StartDate.Format("2006-01-02"),
			formatOptionalDate(event.EndDate),
			derefOr(event.StartTime, "-"),
			derefOr(event.EndTime, "-"),
			derefOr(event.Batch, "-"),
			string(event.Status),
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	var result *ExportResult
	switch format {
	case ExportFormatCSV:
		content, err := export.RenderCSV(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		result = &ExportResult{
			Filename:    fmt.Sprintf("events-%s.csv", stamp),
			ContentType: "text/csv",
			Content:     content,
		}
	case ExportFormatPDF:
		content, err := export.RenderPDF(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		result = &ExportResult{
			Filename:    fmt.Sprintf("events-%s.pdf", stamp),
			ContentType: "application/pdf",
			Content:     content,
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	s.archiveExport(result)
	return result, nil
}

// archiveExport persists a copy of the rendered report and attaches a signed
// download link. Archive failures degrade to an inline download.
func (s *EventService) archiveExport(result *ExportResult) {
	if s.archive == nil || s.signer == nil {
		return
	}

	relPath, err := s.archive.Save(result.Filename, result.Content)
	if err != nil {
		s.logger.Warn("failed to archive export", zap.String("filename", result.Filename), zap.Error(err))
		return
	}
	token, expiresAt, err := s.signer.Sign(relPath)
	if err != nil {
		s.logger.Warn("failed to sign export link", zap.String("filename", result.Filename), zap.Error(err))
		return
	}

	prefix := strings.TrimRight(s.apiPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	result.DownloadURL = fmt.Sprintf("%s/events/export/download/%s", prefix, token)
	result.ExpiresAt = &expiresAt
}

// ResolveDownload validates a signed token and opens the archived file.
func (s *EventService) ResolveDownload(token string) (*ExportDownload, error) {
	if s.archive == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export downloads are not available")
	}

	relPath, _, err := s.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	file, err := s.archive.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file")
	}

	contentType := "application/pdf"
	if strings.EqualFold(path.Ext(relPath), ".csv") {
		contentType = "text/csv"
	}
	return &ExportDownload{
		File:        file,
		Filename:    path.Base(relPath),
		ContentType: contentType,
		SizeBytes:   info.Size(),
	}, nil
}

// CleanupExports deletes archived report files past their retention window.
func (s *EventService) CleanupExports() ([]string, error) {
	if s.archive == nil {
		return nil, nil
	}
	deleted, err := s.archive.CleanupOlderThan(s.resultTTL)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		s.logger.Info("cleaned up expired exports", zap.Int("count", len(deleted)))
	}
	return deleted, nil
}

// applySchedule parses and validates the date/time payload fields onto the
// event record.
func (s *EventService) applySchedule(event *models.EnrollmentEvent, startDate string, endDate, startTime, endTime *string) error {
	start, err := parseDay(startDate)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
	}
	event.StartDate = start

	event.EndDate = nil
	if endDate != nil && *endDate != "" {
		end, err := parseDay(*endDate)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "end_date must be YYYY-MM-DD")
		}
		if end.Before(start) {
			return appErrors.Clone(appErrors.ErrValidation, "end_date must not precede start_date")
		}
		event.EndDate = &end
	}

	event.StartTime, err = normalizeClock(startTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	event.EndTime, err = normalizeClock(endTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	return nil
}

func (s *EventService) invalidateWindowCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, windowCachePattern)
}

func parseDay(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}

// normalizeClock validates an optional HH:MM (or HH:MM:SS) string and
// normalizes it to HH:MM.
func normalizeClock(raw *string) (*string, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if parsed, err := time.Parse(layout, *raw); err == nil {
			normalized := parsed.Format("15:04")
			return &normalized, nil
		}
	}
	return nil, fmt.Errorf("invalid clock value %q", *raw)
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
