package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joaohlviana/99novo-sub001/internal/auth"
	"github.com/joaohlviana/99novo-sub001/internal/middleware"
	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/services"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	container *services.Container
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(container *services.Container) *AuthHandler {
	return &AuthHandler{
		container: container,
	}
}

// TokenRequest represents an admin token request
type TokenRequest struct {
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	Token string `json:"token" binding:"required"`
}

// TokenResponse represents an issued token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token exchanges the admin password for a token
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "Bad Request", "Invalid request format")
		return
	}

	token, expiresAt, err := h.container.GetAdminAuthenticator().Login(req.Password)
	switch {
	case errors.Is(err, auth.ErrAdminLoginDisabled):
		middleware.Abort(c, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
		return
	case errors.Is(err, models.ErrInvalidCredentials):
		h.container.GetLogger().Warnf("Rejected admin login from %s", c.ClientIP())
		middleware.Abort(c, http.StatusUnauthorized, "Unauthorized", "Invalid credentials")
		return
	case err != nil:
		h.container.GetLogger().Errorf("Admin login failed: %v", err)
		middleware.Abort(c, http.StatusInternalServerError, "Internal Server Error", "Failed to issue token")
		return
	}

	c.JSON(http.StatusOK, tokenResponse(token, expiresAt))
}

// RefreshToken issues a fresh token for a valid one
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "Bad Request", "Invalid request format")
		return
	}

	token, expiresAt, err := h.container.GetJWTManager().RefreshToken(req.Token)
	if err != nil {
		middleware.Abort(c, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
		return
	}

	c.JSON(http.StatusOK, tokenResponse(token, expiresAt))
}

func tokenResponse(token string, expiresAt time.Time) TokenResponse {
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
	}
}
