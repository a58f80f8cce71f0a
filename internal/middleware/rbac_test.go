package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/lms-core-api/internal/models"
)

func rbacContext(t *testing.T, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/units", nil)
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}
	return c, rec
}

func TestRequireRankAllowsAtOrAboveThreshold(t *testing.T) {
	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin} {
		c, rec := rbacContext(t, &models.JWTClaims{UserID: "user-1", Role: role})
		RequireRank(models.RoleAdmin)(c)
		assert.False(t, c.IsAborted(), string(role))
		assert.Equal(t, http.StatusOK, rec.Code, string(role))
	}
}

func TestRequireRankBlocksLowerRoles(t *testing.T) {
	for _, role := range []models.UserRole{models.RoleStudent, models.RoleMentor} {
		c, rec := rbacContext(t, &models.JWTClaims{UserID: "user-1", Role: role})
		RequireRank(models.RoleAdmin)(c)
		assert.True(t, c.IsAborted(), string(role))
		assert.Equal(t, http.StatusForbidden, rec.Code, string(role))
	}
}

func TestRequireRankBlocksUnknownRole(t *testing.T) {
	c, rec := rbacContext(t, &models.JWTClaims{UserID: "user-1", Role: "INTERN"})
	RequireRank(models.RoleStudent)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRankWithoutClaims(t *testing.T) {
	c, rec := rbacContext(t, nil)
	RequireRank(models.RoleStudent)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSelfOrRankAllowsSelf(t *testing.T) {
	c, rec := rbacContext(t, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})
	c.Params = gin.Params{{Key: "id", Value: "user-1"}}
	RequireSelfOrRank(models.RoleAdmin)(c)
	assert.False(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireSelfOrRankBlocksOtherStudents(t *testing.T) {
	c, rec := rbacContext(t, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})
	c.Params = gin.Params{{Key: "id", Value: "user-2"}}
	RequireSelfOrRank(models.RoleAdmin)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireSelfOrRankAllowsAdminOnOthers(t *testing.T) {
	c, rec := rbacContext(t, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "user-2"}}
	RequireSelfOrRank(models.RoleAdmin)(c)
	assert.False(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, rec.Code)
}
