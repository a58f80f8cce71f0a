package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

// CurriculumHandler exposes curriculum metadata and structure endpoints.
type CurriculumHandler struct {
	curricula *service.CurriculumService
	structure *service.StructureService
}

// NewCurriculumHandler constructs CurriculumHandler.
func NewCurriculumHandler(curricula *service.CurriculumService, structure *service.StructureService) *CurriculumHandler {
	return &CurriculumHandler{curricula: curricula, structure: structure}
}

// List godoc
// @Summary List curricula of a division
// @Tags Curricula
// @Produce json
// @Param division query string true "Division"
// @Param state query string false "Lifecycle state"
// @Success 200 {object} response.Envelope
// @Router /curricula [get]
func (h *CurriculumHandler) List(c *gin.Context) {
	division := models.Division(strings.ToUpper(c.Query("division")))
	state := models.LifecycleState(strings.ToUpper(c.Query("state")))
	items, err := h.curricula.ListByDivision(c.Request.Context(), division, state)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get one curriculum
// @Tags Curricula
// @Produce json
// @Param id path string true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id} [get]
func (h *CurriculumHandler) Get(c *gin.Context) {
	curriculum, err := h.curricula.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, curriculum, nil)
}

// Create godoc
// @Summary Create curriculum
// @Tags Curricula
// @Accept json
// @Produce json
// @Param payload body service.CreateCurriculumRequest true "Curriculum payload"
// @Success 201 {object} response.Envelope
// @Router /curricula [post]
func (h *CurriculumHandler) Create(c *gin.Context) {
	var req service.CreateCurriculumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	curriculum, err := h.curricula.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, curriculum)
}

// Update godoc
// @Summary Update curriculum metadata
// @Tags Curricula
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param payload body service.UpdateCurriculumRequest true "Curriculum payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id} [put]
func (h *CurriculumHandler) Update(c *gin.Context) {
	var req service.UpdateCurriculumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	curriculum, err := h.curricula.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, curriculum, nil)
}

// Structure godoc
// @Summary Get curriculum structure
// @Description Ordered core chain and elective bloc
// @Tags Curricula
// @Produce json
// @Param id path string true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id}/structure [get]
func (h *CurriculumHandler) Structure(c *gin.Context) {
	structure, err := h.structure.Structure(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}

// AddMembership godoc
// @Summary Add a unit to a curriculum
// @Tags Curricula
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param payload body service.AddMembershipRequest true "Membership payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /curricula/{id}/units [post]
func (h *CurriculumHandler) AddMembership(c *gin.Context) {
	var req service.AddMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	membership, err := h.structure.Add(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, membership)
}

// Reorder godoc
// @Summary Move a unit within the curriculum
// @Description Position null demotes the unit to the elective bloc
// @Tags Curricula
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param payload body service.ReorderRequest true "Reorder payload"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id}/order [patch]
func (h *CurriculumHandler) Reorder(c *gin.Context) {
	var req service.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.structure.Reorder(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveMembership godoc
// @Summary Remove a unit from a curriculum
// @Tags Curricula
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param unitId path string true "Unit ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id}/units/{unitId} [delete]
func (h *CurriculumHandler) RemoveMembership(c *gin.Context) {
	if err := h.structure.Remove(c.Request.Context(), c.Param("id"), c.Param("unitId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ReplaceStructure godoc
// @Summary Replace the full curriculum structure
// @Description Core positions must arrive dense starting at 1
// @Tags Curricula
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param payload body service.ReplaceStructureRequest true "Structure payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curricula/{id}/structure [put]
func (h *CurriculumHandler) ReplaceStructure(c *gin.Context) {
	var req service.ReplaceStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.structure.Replace(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
