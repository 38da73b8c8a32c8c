package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joaohlviana/99novo-sub001/internal/auth"
	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// Context keys set by the middleware
const (
	ContextRequestID = "request_id"
	ContextSubject   = "subject"
	ContextRole      = "role"
)

// RequestID tags every request with the incoming X-Request-ID header or a
// new UUID, and echoes it back
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// AdminRequired accepts only requests bearing a valid admin token
func AdminRequired(tokens *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			Abort(c, http.StatusUnauthorized, "Unauthorized", "Authorization header is required")
			return
		}

		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			Abort(c, http.StatusUnauthorized, "Unauthorized", "Invalid authorization header format")
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(tokenParts[1]))
		if err != nil {
			Abort(c, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
			return
		}

		if !claims.IsAdmin() {
			Abort(c, http.StatusForbidden, "Forbidden", "Admin privileges required")
			return
		}

		c.Set(ContextSubject, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// Abort writes a problem details response and stops the handler chain
func Abort(c *gin.Context, status int, title, detail string) {
	apiErr := models.NewAPIError(status, title, detail, c.Request.URL.Path)
	apiErr.RequestID = c.GetString(ContextRequestID)
	c.AbortWithStatusJSON(status, apiErr)
}
