package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/lms-portal-api/internal/dto"
	"github.com/learnhub/lms-portal-api/internal/models"
	"github.com/learnhub/lms-portal-api/internal/service"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
	"github.com/learnhub/lms-portal-api/pkg/response"
)

// EventHandler exposes event calendar endpoints plus the public enrollment
// window evaluator.
type EventHandler struct {
	events   *service.EventService
	window   *service.WindowService
	location *time.Location
	exports  bool
}

// NewEventHandler constructs an event handler.
func NewEventHandler(events *service.EventService, window *service.WindowService, location *time.Location, exportsEnabled bool) *EventHandler {
	if location == nil {
		location = time.Local
	}
	return &EventHandler{events: events, window: window, location: location, exports: exportsEnabled}
}

// Window godoc
// @Summary Evaluate the enrollment window
// @Description Whether enrollment is open right now and when it opens next
// @Tags Enrollment
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollment/window [get]
func (h *EventHandler) Window(c *gin.Context) {
	window, err := h.window.Evaluate(c.Request.Context(), time.Now().In(h.location))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

// List godoc
// @Summary List events
// @Description List events with filters
// @Tags Events
// @Produce json
// @Param category query string false "Filter by category"
// @Param status query string false "Filter by status"
// @Param batch query string false "Filter by batch"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	filter := h.filterFromQuery(c)

	events, pagination, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Get event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.events.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body service.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req service.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.events.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 204
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.events.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export events
// @Description Render the filtered event list as CSV or PDF. Returns a signed download link when report archiving is configured, otherwise streams the file inline.
// @Tags Events
// @Produce octet-stream
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /events/export [get]
func (h *EventHandler) Export(c *gin.Context) {
	if !h.exports {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled"))
		return
	}

	filter := h.filterFromQuery(c)
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	result, err := h.events.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.DownloadURL != "" {
		response.JSON(c, http.StatusOK, dto.ExportLink{
			Filename:    result.Filename,
			DownloadURL: result.DownloadURL,
			ExpiresAt:   result.ExpiresAt,
		}, nil)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

// Download godoc
// @Summary Download an archived export
// @Description Stream a previously generated report. The token in the path authorizes the download.
// @Tags Events
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /events/export/download/{token} [get]
func (h *EventHandler) Download(c *gin.Context) {
	if !h.exports {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled"))
		return
	}

	download, err := h.events.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment; filename="+download.Filename)
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, download.SizeBytes, download.ContentType, download.File, nil)
}

func (h *EventHandler) filterFromQuery(c *gin.Context) models.EventFilter {
	var filter models.EventFilter
	if category := c.Query("category"); category != "" {
		filter.Category = models.EventCategory(category)
	}
	if status := c.Query("status"); status != "" {
		filter.Status = models.EventStatus(status)
	}
	filter.Batch = c.Query("batch")
	filter.Trimester = c.Query("trimester")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}
