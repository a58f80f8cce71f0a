package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

// RequireRank blocks callers whose role ranks below the required role.
// Roles form a strict ladder, so a single threshold replaces per-route
// role lists.
func RequireRank(required models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if !models.HasRank(claims.Role, required) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireSelfOrRank allows the user identified by the id route param, or
// anyone at or above the required rank.
func RequireSelfOrRank(required models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
			c.Next()
			return
		}
		if models.HasRank(claims.Role, required) {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
