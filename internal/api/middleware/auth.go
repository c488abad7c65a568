// server/internal/api/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"pharmacy-cart-api-server/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys set by Authenticate.
const (
	KeyUserID = "user_id"
	KeyRole   = "user_role"
	KeyToken  = "user_token"
)

// Authenticate reads the bearer token, puts the worker's identity in the
// context and keeps the raw token for forwarding to the backend.
func Authenticate(parser *auth.Parser, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}

		claims, err := parser.Parse(tokenString)
		if err != nil {
			log.Debug("rejected token", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(KeyUserID, claims.Identity())
		c.Set(KeyRole, claims.Role)
		c.Set(KeyToken, tokenString)

		c.Next()
	}
}

// Authorize lets through only the given roles. Must run after Authenticate.
func Authorize(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(KeyRole)
		for _, role := range allowedRoles {
			if role == userRole {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
	}
}
