package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/lms-portal-api/internal/service"
	appErrors "github.com/learnhub/lms-portal-api/pkg/errors"
	"github.com/learnhub/lms-portal-api/pkg/response"
)

// SemesterSettingsHandler exposes the trainer-facing semester endpoints.
type SemesterSettingsHandler struct {
	settings *service.SemesterSettingsService
}

// NewSemesterSettingsHandler constructs a settings handler.
func NewSemesterSettingsHandler(settings *service.SemesterSettingsService) *SemesterSettingsHandler {
	return &SemesterSettingsHandler{settings: settings}
}

// Get godoc
// @Summary Get own semester settings
// @Description The caller's active batch, semester and completion status
// @Tags Trainer
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /trainer/semester [get]
func (h *SemesterSettingsHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	settings, err := h.settings.GetForTrainer(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// Complete godoc
// @Summary Complete own semester
// @Description Mark the caller's active semester as completed
// @Tags Trainer
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /trainer/semester/complete [post]
func (h *SemesterSettingsHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	settings, err := h.settings.CompleteOwnSemester(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}
