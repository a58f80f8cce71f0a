package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/service"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

// UserHandler exposes profile and curriculum selection endpoints.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Profile godoc
// @Summary Get profile overview
// @Description User, selected curriculum, enrollments and per-unit progress
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me [get]
func (h *UserHandler) Profile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	overview, err := h.users.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// AvailableCurricula godoc
// @Summary List selectable curricula
// @Description Active curricula of the caller's division
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/curricula [get]
func (h *UserHandler) AvailableCurricula(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	items, err := h.users.AvailableCurricula(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// SelectCurriculum godoc
// @Summary Select or switch curriculum
// @Description One switch away from the first selection is allowed
// @Tags Profile
// @Accept json
// @Produce json
// @Param payload body service.SelectCurriculumRequest true "Selection payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /me/curriculum [put]
func (h *UserHandler) SelectCurriculum(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SelectCurriculumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.users.SelectCurriculum(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Transcript godoc
// @Summary Download transcript
// @Description CSV of enrollments with completion dates
// @Tags Profile
// @Produce text/csv
// @Success 200 {file} file
// @Router /me/transcript [get]
func (h *UserHandler) Transcript(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	payload, filename, err := h.users.Transcript(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}
