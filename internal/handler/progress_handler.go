package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/service"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

// ProgressHandler exposes lesson completion endpoints.
type ProgressHandler struct {
	progress *service.ProgressService
}

// NewProgressHandler constructs ProgressHandler.
func NewProgressHandler(progress *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// CompleteLesson godoc
// @Summary Mark a lesson complete
// @Description Idempotent; completing the last lesson completes the unit
// @Tags Progress
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/complete [post]
func (h *ProgressHandler) CompleteLesson(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.progress.MarkLessonComplete(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UnitProgress godoc
// @Summary Get lesson progress for a unit
// @Tags Progress
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{id}/progress [get]
func (h *ProgressHandler) UnitProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	progress, err := h.progress.Progress(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
