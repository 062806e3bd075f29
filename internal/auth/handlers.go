package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/cr360/cr360/internal/errors"
)

// Handlers exposes the authentication HTTP endpoints
type Handlers struct {
	manager *Manager
}

// NewHandlers creates auth handlers
func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// SetupRoutes registers authentication routes on the given group
func (h *Handlers) SetupRoutes(r *gin.RouterGroup) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.GET("/me", h.GetCurrentUser)
		authGroup.POST("/keys", h.CreateAPIKey)
		authGroup.GET("/keys", h.ListAPIKeys)
		authGroup.DELETE("/keys/:id", h.RevokeAPIKey)
	}
}

// LoginRequest is the login endpoint body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a user and issues a JWT
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.manager.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.manager.CreateJWTToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"user":       user,
		"expires_at": time.Now().Add(h.manager.config.JWTExpiry),
	})
}

// GetCurrentUser returns the authenticated user
func (h *Handlers) GetCurrentUser(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		err := apperrors.NewNotAuthenticatedError()
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Message})
		return
	}

	c.JSON(http.StatusOK, user)
}

// CreateAPIKeyRequest is the API key creation body
type CreateAPIKeyRequest struct {
	Name      string `json:"name" binding:"required"`
	ExpiresIn string `json:"expires_in"`
}

// CreateAPIKey issues a new API key for the authenticated user
func (h *Handlers) CreateAPIKey(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	expiresIn := 90 * 24 * time.Hour
	if req.ExpiresIn != "" {
		parsed, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires_in duration"})
			return
		}
		expiresIn = parsed
	}

	apiKey, err := h.manager.CreateAPIKey(user.ID, req.Name, expiresIn)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create API key"})
		return
	}

	// The plaintext key appears only in this response
	c.JSON(http.StatusCreated, apiKey)
}

// ListAPIKeys lists the authenticated user's API keys
func (h *Handlers) ListAPIKeys(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": h.manager.ListAPIKeys(user.ID)})
}

// RevokeAPIKey deactivates one of the user's API keys
func (h *Handlers) RevokeAPIKey(c *gin.Context) {
	user, exists := GetCurrentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	keyID := c.Param("id")
	for _, key := range h.manager.ListAPIKeys(user.ID) {
		if key.ID == keyID {
			if err := h.manager.RevokeAPIKey(keyID); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke API key"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "revoked"})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
}
