package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/learnhub/lms-portal-api/internal/middleware"
	"github.com/learnhub/lms-portal-api/internal/models"
)

// claimsFromContext returns the JWT claims the auth middleware stored, or
// nil when the route ran unauthenticated.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
