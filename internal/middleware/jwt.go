package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/placepass/backend/internal/auth"
	"github.com/placepass/backend/pkg/response"
)

const (
	// ContextUserID is the key for the operator ID in gin context.
	ContextUserID = auth.ContextOperatorID
	// ContextCompanyID is the key for the operator's company ID in gin context.
	ContextCompanyID = auth.ContextCompanyID
	// ContextUserRole is the key for the operator role in gin context.
	ContextUserRole = auth.ContextRole
)

// JWT returns a middleware that validates the bearer token and sets operator claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.OperatorID)
		c.Set(ContextCompanyID, claims.CompanyID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}
