package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/middleware"
	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

// LeaderboardHandler exposes the points ranking read model.
type LeaderboardHandler struct {
	leaderboard *service.LeaderboardService
}

// NewLeaderboardHandler constructs LeaderboardHandler.
func NewLeaderboardHandler(leaderboard *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard}
}

// Page godoc
// @Summary Division leaderboard
// @Description Ranking by accumulated points; staff may query any division
// @Tags Leaderboard
// @Produce json
// @Param division query string false "Division (staff only)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /leaderboard [get]
func (h *LeaderboardHandler) Page(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	division := claims.Division
	if q := c.Query("division"); q != "" && models.HasRank(claims.Role, models.RoleMentor) {
		division = models.Division(strings.ToUpper(q))
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.leaderboard.Page(c.Request.Context(), division, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}
