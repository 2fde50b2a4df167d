package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/pkg/response"
)

// RequireRole returns a middleware that allows only operators with one of roles. It must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := models.Role(c.GetString(ContextUserRole))
		if role == "" {
			response.Unauthorized(c, "missing operator context")
			c.Abort()
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
