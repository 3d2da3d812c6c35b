package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/auth"
	"github.com/yourusername/mc-server-panel/internal/models"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	jwtManager *auth.JWTManager
	users      auth.CredentialSource
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwtManager *auth.JWTManager, users auth.CredentialSource) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager, users: users}
}

// Login exchanges a username and password for an access token
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request"})
		return
	}

	token, err := h.jwtManager.Authenticate(h.users, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		log.Printf("[Auth] Failed login for %q from %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, token)
}

// GetCurrentUser returns the authenticated user
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, models.CurrentUser{Username: username(c)})
}
