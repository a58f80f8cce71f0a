package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

// UnitHandler exposes unit catalog endpoints.
type UnitHandler struct {
	units *service.UnitService
}

// NewUnitHandler constructs UnitHandler.
func NewUnitHandler(units *service.UnitService) *UnitHandler {
	return &UnitHandler{units: units}
}

func unitFilterFromQuery(c *gin.Context) models.UnitFilter {
	var filter models.UnitFilter
	filter.Division = models.Division(strings.ToUpper(c.Query("division")))
	filter.State = models.PublicationState(strings.ToUpper(c.Query("state")))
	filter.Search = c.Query("search")
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

// Catalog godoc
// @Summary List units for the caller
// @Description Units of the caller's division, each with its lock state
// @Tags Units
// @Produce json
// @Param search query string false "Search title"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /units [get]
func (h *UnitHandler) Catalog(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := unitFilterFromQuery(c)
	filter.Division = claims.Division
	filter.State = models.UnitPublished

	units, pagination, err := h.units.Catalog(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, units, pagination)
}

// List godoc
// @Summary List units for staff
// @Tags Units
// @Produce json
// @Param division query string false "Filter by division"
// @Param state query string false "Filter by publication state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/units [get]
func (h *UnitHandler) List(c *gin.Context) {
	units, pagination, err := h.units.List(c.Request.Context(), unitFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, units, pagination)
}

// Get godoc
// @Summary Get one unit
// @Description Unit with lesson outline; the outline is withheld while locked
// @Tags Units
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /units/{id} [get]
func (h *UnitHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.units.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create unit
// @Tags Units
// @Accept json
// @Produce json
// @Param payload body service.CreateUnitRequest true "Unit payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/units [post]
func (h *UnitHandler) Create(c *gin.Context) {
	var req service.CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	unit, err := h.units.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, unit)
}

// Update godoc
// @Summary Update unit
// @Tags Units
// @Accept json
// @Produce json
// @Param id path string true "Unit ID"
// @Param payload body service.UpdateUnitRequest true "Unit payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/units/{id} [put]
func (h *UnitHandler) Update(c *gin.Context) {
	var req service.UpdateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	unit, err := h.units.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, unit, nil)
}

// SetState godoc
// @Summary Change unit publication state
// @Tags Units
// @Accept json
// @Produce json
// @Param id path string true "Unit ID"
// @Param payload body object true "State payload"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/units/{id}/state [patch]
func (h *UnitHandler) SetState(c *gin.Context) {
	var payload struct {
		State models.PublicationState `json:"publication_state" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.units.SetState(c.Request.Context(), c.Param("id"), payload.State); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
