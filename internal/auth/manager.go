// Package auth provides user management, JWT and API key authentication,
// and per-client rate limiting for the HTTP layer.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cr360/cr360/internal/config"
	apperrors "github.com/cr360/cr360/internal/errors"
	"github.com/cr360/cr360/internal/observability"
)

// User represents a user in the system
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"`
	Roles        []string `json:"roles"`
	Active       bool     `json:"active"`
}

// APIKey represents an API key for authentication
type APIKey struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key,omitempty"` // Plaintext, only shown once
	HashedKey  string    `json:"-"`
	UserID     string    `json:"user_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Active     bool      `json:"active"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Manager handles authentication and user management. Users and API keys
// live in memory; a restart drops everything except the configured secret.
type Manager struct {
	config         config.AuthConfig
	users          map[string]*User   // userID -> User
	apiKeys        map[string]*APIKey // hashedKey -> APIKey
	userByUsername map[string]*User
	mu             sync.RWMutex
}

// NewManager creates an authentication manager
func NewManager(cfg config.AuthConfig) *Manager {
	if cfg.JWTExpiry == 0 {
		cfg.JWTExpiry = 24 * time.Hour
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 60
	}
	if cfg.JWTSecret == "" {
		// Ephemeral secret: tokens become invalid across restarts
		cfg.JWTSecret = generateRandomString(32)
	}

	return &Manager{
		config:         cfg,
		users:          make(map[string]*User),
		apiKeys:        make(map[string]*APIKey),
		userByUsername: make(map[string]*User),
	}
}

// CreateUser creates a new user with a bcrypt-hashed password
func (m *Manager) CreateUser(username, email, password string, roles []string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.userByUsername[username]; exists {
		return nil, fmt.Errorf("user already exists: %s", username)
	}

	var passwordHash string
	if password != "" {
		hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = string(hashedBytes)
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        roles,
		Active:       true,
	}

	m.users[user.ID] = user
	m.userByUsername[username] = user

	return user, nil
}

// Authenticate verifies a username/password pair
func (m *Manager) Authenticate(username, password string) (*User, error) {
	observability.GetGlobalMetrics().Inc(observability.MetricAuthAttempts, nil)

	m.mu.RLock()
	user, exists := m.userByUsername[username]
	m.mu.RUnlock()

	if !exists || !user.Active {
		observability.GetGlobalMetrics().Inc(observability.MetricAuthFailure, nil)
		return nil, apperrors.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		observability.GetGlobalMetrics().Inc(observability.MetricAuthFailure, nil)
		return nil, apperrors.NewInvalidCredentialsError()
	}

	observability.GetGlobalMetrics().Inc(observability.MetricAuthSuccess, nil)
	return user, nil
}

// GetUser retrieves a user by ID
func (m *Manager) GetUser(userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[userID]
	if !exists {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	return user, nil
}

// CreateAPIKey creates a new API key for a user. The plaintext key is only
// present on the returned value; lookups go through the SHA256 hash.
func (m *Manager) CreateAPIKey(userID, name string, expiresIn time.Duration) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[userID]; !exists {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	key := generateAPIKey()
	hashedKey := hashAPIKey(key)

	apiKey := &APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		Key:       key,
		HashedKey: hashedKey,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(expiresIn),
		Active:    true,
	}

	m.apiKeys[hashedKey] = apiKey

	return apiKey, nil
}

// ValidateAPIKey validates an API key and returns the associated user
func (m *Manager) ValidateAPIKey(key string) (*User, *APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	apiKey, exists := m.apiKeys[hashAPIKey(key)]
	if !exists {
		return nil, nil, fmt.Errorf("invalid API key")
	}
	if !apiKey.Active {
		return nil, nil, fmt.Errorf("API key is inactive")
	}
	if time.Now().After(apiKey.ExpiresAt) {
		return nil, nil, fmt.Errorf("API key has expired")
	}

	user, exists := m.users[apiKey.UserID]
	if !exists || !user.Active {
		return nil, nil, fmt.Errorf("user not available for API key")
	}

	apiKey.LastUsedAt = time.Now()

	return user, apiKey, nil
}

// RevokeAPIKey revokes an API key by ID
func (m *Manager) RevokeAPIKey(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, apiKey := range m.apiKeys {
		if apiKey.ID == keyID {
			apiKey.Active = false
			return nil
		}
	}

	return fmt.Errorf("API key not found: %s", keyID)
}

// ListAPIKeys returns all API keys for a user, without the plaintext key
func (m *Manager) ListAPIKeys(userID string) []*APIKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]*APIKey, 0)
	for _, apiKey := range m.apiKeys {
		if apiKey.UserID == userID {
			keyCopy := *apiKey
			keyCopy.Key = ""
			keys = append(keys, &keyCopy)
		}
	}

	return keys
}

// CreateJWTToken creates a signed JWT for a user
func (m *Manager) CreateJWTToken(user *User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.JWTExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "cr360-query-service",
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	observability.GetGlobalMetrics().Inc(observability.MetricAuthTokensCreated, nil)
	return tokenString, nil
}

// ValidateJWTToken validates a JWT and returns its claims
func (m *Manager) ValidateJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	m.mu.RLock()
	user, exists := m.users[claims.UserID]
	m.mu.RUnlock()

	if !exists || !user.Active {
		return nil, fmt.Errorf("user not available")
	}

	return claims, nil
}

// CleanupExpired removes expired API keys
func (m *Manager) CleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for hash, apiKey := range m.apiKeys {
		if now.After(apiKey.ExpiresAt) {
			delete(m.apiKeys, hash)
		}
	}
}

// Helper functions

func generateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

// generateAPIKey generates a new API key with "cr360_" prefix
func generateAPIKey() string {
	return "cr360_" + generateRandomString(32)
}

// hashAPIKey hashes an API key using SHA256
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
