package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/auth"
	"github.com/yourusername/mc-server-panel/internal/server"
)

// Context keys set by Auth
const (
	ContextClaims   = "user"
	ContextUsername = "username"
)

// Auth middleware validates JWT tokens
func Auth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// header first, query token for websocket clients
		token := ""
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
				return
			}
			token = strings.TrimSpace(parts[1])
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUsername, claims.Username)
		c.Request = c.Request.WithContext(server.WithActor(c.Request.Context(), claims.Username))

		c.Next()
	}
}

// Username returns the authenticated user, or "" for public routes
func Username(c *gin.Context) string {
	return c.GetString(ContextUsername)
}
