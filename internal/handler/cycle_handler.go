package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/lms-portal-api/internal/dto"
	"github.com/learnhub/lms-portal-api/internal/service"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
	"github.com/learnhub/lms-portal-api/pkg/response"
)

// CycleHandler exposes batch cycle endpoints.
type CycleHandler struct {
	cycles   *service.CycleService
	settings *service.SemesterSettingsService
}

// NewCycleHandler constructs a cycle handler.
func NewCycleHandler(cycles *service.CycleService, settings *service.SemesterSettingsService) *CycleHandler {
	return &CycleHandler{cycles: cycles, settings: settings}
}

// Status godoc
// @Summary Get batch cycle status
// @Description Current batch, cycle state and semester progress
// @Tags Cycle
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /cycle [get]
func (h *CycleHandler) Status(c *gin.Context) {
	status, err := h.cycles.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// CheckEvents godoc
// @Summary Check enrollment events
// @Description Run one check-and-activate pass over ended enrollment events
// @Tags Cycle
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /cycle/check-events [post]
func (h *CycleHandler) CheckEvents(c *gin.Context) {
	result, err := h.cycles.CheckEnrollmentEvents(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CompleteSemester godoc
// @Summary Complete a semester
// @Description Mark one semester of the running batch as completed
// @Tags Cycle
// @Accept json
// @Produce json
// @Param payload body dto.CompleteSemesterRequest true "Semester payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /cycle/semesters/complete [post]
func (h *CycleHandler) CompleteSemester(c *gin.Context) {
	var req dto.CompleteSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.cycles.CompleteSemester(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Progress godoc
// @Summary Progress to next batch
// @Description Advance the batch ring once all semesters are complete
// @Tags Cycle
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /cycle/progress [post]
func (h *CycleHandler) Progress(c *gin.Context) {
	result, err := h.cycles.ProgressToNextBatch(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Trainers godoc
// @Summary Trainer completion overview
// @Description Per-trainer semester completion against the current batch
// @Tags Cycle
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /cycle/trainers [get]
func (h *CycleHandler) Trainers(c *gin.Context) {
	summary, err := h.settings.CompletionSummary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// EndBatch godoc
// @Summary End the current batch
// @Description Roll the batch over once every trainer has completed the semester
// @Tags Cycle
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /cycle/end-batch [post]
func (h *CycleHandler) EndBatch(c *gin.Context) {
	result, err := h.settings.EndBatch(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
