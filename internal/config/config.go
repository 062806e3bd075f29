// Package config loads typed application configuration through a chain of
// secret providers (mounted secret files, environment variables).
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Supabase REST configuration (secondary table accessor)
	Supabase SupabaseConfig

	// Redis configuration (conversation store)
	Redis RedisConfig

	// Gemini LLM configuration
	Gemini GeminiConfig

	// Semantic model configuration
	Semantic SemanticConfig

	// Authentication configuration
	Auth AuthConfig

	// Server configuration
	Server ServerConfig

	// Query configuration
	Query QueryConfig
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// SupabaseConfig holds the PostgREST endpoint configuration
type SupabaseConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	ConversationTTL time.Duration
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// SemanticConfig holds semantic model configuration
type SemanticConfig struct {
	ContextFilePath string
}

// AuthConfig holds authentication and authorization configuration
type AuthConfig struct {
	JWTSecret          string
	JWTExpiry          time.Duration
	RateLimitPerMinute int
	AllowAnonymous     bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port    string
	GinMode string
}

// QueryConfig holds query processing configuration
type QueryConfig struct {
	MaxQueryLength int
	HistoryTurns   int
}

// Loader handles loading configuration from various sources
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a new configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{
		provider: provider,
	}
}

// NewDefaultLoader creates a loader with the default provider chain:
// 1. File-based secrets (if mounted)
// 2. Environment variables (fallback)
func NewDefaultLoader() *Loader {
	providers := []SecretProvider{
		NewFileProvider("/var/secrets"),
		NewEnvProvider(),
	}

	return &Loader{
		provider: NewChainProvider(providers...),
	}
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	cfg.Database = DatabaseConfig{
		Host:     l.getString(ctx, "DB_HOST", "localhost"),
		Port:     l.getString(ctx, "DB_PORT", "5432"),
		Database: l.getString(ctx, "DB_NAME", "cr360"),
		Username: l.getString(ctx, "DB_USER", "cr360"),
		Password: l.getString(ctx, "DB_PASSWORD", ""),
		SSLMode:  l.getString(ctx, "DB_SSLMODE", "disable"),
	}

	cfg.Supabase = SupabaseConfig{
		URL:     l.getString(ctx, "SUPABASE_URL", ""),
		APIKey:  l.getString(ctx, "SUPABASE_KEY", ""),
		Timeout: l.getDuration(ctx, "SUPABASE_TIMEOUT", 30*time.Second),
	}

	cfg.Redis = RedisConfig{
		Addr:            l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password:        l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:              l.getInt(ctx, "REDIS_DB", 0),
		ConversationTTL: l.getDuration(ctx, "CONVERSATION_TTL", 24*time.Hour),
	}

	cfg.Gemini = GeminiConfig{
		APIKey:    l.getString(ctx, "GEMINI_API_KEY", ""),
		Model:     l.getString(ctx, "GEMINI_MODEL", "gemini-2.5-flash"),
		MaxTokens: l.getInt(ctx, "GEMINI_MAX_TOKENS", 8192),
		Timeout:   l.getDuration(ctx, "GEMINI_TIMEOUT", 60*time.Second),
	}

	cfg.Semantic = SemanticConfig{
		ContextFilePath: l.getString(ctx, "CONTEXT_FILE_PATH", "./context/semantic_model_prod.yaml"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret:          l.getString(ctx, "JWT_SECRET", ""),
		JWTExpiry:          l.getDuration(ctx, "JWT_EXPIRY", 24*time.Hour),
		RateLimitPerMinute: l.getInt(ctx, "RATE_LIMIT_PER_MINUTE", 60),
		AllowAnonymous:     l.getBool(ctx, "ALLOW_ANONYMOUS", false),
	}

	cfg.Server = ServerConfig{
		Port:    l.getString(ctx, "PORT", "8080"),
		GinMode: l.getString(ctx, "GIN_MODE", "debug"),
	}

	cfg.Query = QueryConfig{
		MaxQueryLength: l.getInt(ctx, "MAX_QUERY_LENGTH", 1000),
		HistoryTurns:   l.getInt(ctx, "HISTORY_TURNS", 3),
	}

	return cfg, nil
}

// Helper methods for retrieving and parsing configuration values

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// DSN builds a lib/pq connection string from the database config
func (d DatabaseConfig) DSN() string {
	parts := []string{
		"host=" + d.Host,
		"port=" + d.Port,
		"dbname=" + d.Database,
		"user=" + d.Username,
		"sslmode=" + d.SSLMode,
	}
	if d.Password != "" {
		parts = append(parts, "password="+d.Password)
	}
	return strings.Join(parts, " ")
}

// MustLoad loads configuration and panics on error.
// Useful for application startup.
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
