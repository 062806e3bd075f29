package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cr360/cr360/internal/observability"
)

// Middleware returns a gin middleware enforcing rate limits and
// authentication. JWT bearer tokens and API keys are both accepted.
func (m *Manager) Middleware() gin.HandlerFunc {
	limiter := NewRateLimiter()

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if shouldSkipAuth(path) {
			c.Next()
			return
		}

		clientID := getClientID(c)
		if !limiter.Allow(clientID, m.config.RateLimitPerMinute) {
			observability.GetGlobalMetrics().Inc(observability.MetricAuthRateLimited, nil)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		user, err := m.authenticateRequest(c)
		if err != nil {
			if m.config.AllowAnonymous {
				c.Next()
				return
			}

			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("username", user.Username)

		c.Next()
	}
}

// RequireRole returns a middleware that checks the user has one of the roles
func (m *Manager) RequireRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := GetCurrentUser(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			c.Abort()
			return
		}

		for _, required := range requiredRoles {
			for _, role := range user.Roles {
				if role == required {
					c.Next()
					return
				}
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error": "insufficient permissions",
		})
		c.Abort()
	}
}

func (m *Manager) authenticateRequest(c *gin.Context) (*User, error) {
	if user, err := m.authenticateJWT(c); err == nil {
		return user, nil
	}

	if user, err := m.authenticateAPIKey(c); err == nil {
		return user, nil
	}

	return nil, http.ErrAbortHandler
}

func (m *Manager) authenticateJWT(c *gin.Context) (*User, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, http.ErrAbortHandler
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, http.ErrAbortHandler
	}

	claims, err := m.ValidateJWTToken(parts[1])
	if err != nil {
		return nil, err
	}

	return m.GetUser(claims.UserID)
}

func (m *Manager) authenticateAPIKey(c *gin.Context) (*User, error) {
	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		apiKey = c.Query("api_key")
	}
	if apiKey == "" {
		return nil, http.ErrAbortHandler
	}

	user, _, err := m.ValidateAPIKey(apiKey)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// shouldSkipAuth checks if a path bypasses authentication
func shouldSkipAuth(path string) bool {
	skipPaths := []string{
		"/health",
		"/metrics",
		"/api/v1/auth/login",
	}

	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}

	return false
}

// getClientID derives the rate-limit key: user, then API key, then IP
func getClientID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok {
			return "user:" + id
		}
	}

	if apiKey := c.GetHeader("X-API-Key"); len(apiKey) >= 8 {
		return "key:" + apiKey[:8]
	}

	return "ip:" + c.ClientIP()
}

// GetCurrentUser returns the authenticated user from the request context
func GetCurrentUser(c *gin.Context) (*User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}

	user, ok := value.(*User)
	return user, ok
}
