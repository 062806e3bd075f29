package main

import (
	"context"
	"log"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/cr360/cr360/internal/auth"
	"github.com/cr360/cr360/internal/config"
	"github.com/cr360/cr360/internal/conversation"
	"github.com/cr360/cr360/internal/database"
	"github.com/cr360/cr360/internal/llm"
	"github.com/cr360/cr360/internal/observability"
	"github.com/cr360/cr360/internal/processor"
	"github.com/cr360/cr360/internal/semantic"
)

func main() {
	ctx := context.Background()
	logger := observability.NewLogger("main")

	cfg := config.NewDefaultLoader().MustLoad(ctx)
	if err := cfg.ValidateWithContext(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	// Semantic model store (loads lazily on first query)
	semanticStore := semantic.NewStore(cfg.Semantic.ContextFilePath)

	// LLM client
	llmClient, err := llm.NewGeminiClient(llm.Config{
		APIKey:    cfg.Gemini.APIKey,
		Model:     cfg.Gemini.Model,
		MaxTokens: cfg.Gemini.MaxTokens,
	})
	if err != nil {
		log.Fatal("Failed to initialize LLM client: ", err)
	}

	// Database client (connects lazily on first query)
	dbClient := database.NewClient(cfg.Database)

	// Redis-backed conversation store
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	conversationStore := conversation.NewStore(rdb, cfg.Redis.ConversationTTL)

	// Auth manager with periodic API key cleanup
	authManager := auth.NewManager(cfg.Auth)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			authManager.CleanupExpired()
		}
	}()

	// Health checks
	healthChecker := observability.NewHealthChecker()
	healthChecker.Register("database", observability.DatabaseHealthCheck(dbClient.Ping))
	healthChecker.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	healthChecker.Register("llm", observability.LLMHealthCheck(llmClient.CheckAvailability))
	healthChecker.Register("semantic_model", observability.SemanticModelHealthCheck(func(ctx context.Context) (int, error) {
		return semanticStore.MetricCount()
	}))
	healthChecker.Register("memory", observability.MemoryHealthCheck(func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Alloc, m.Sys
	}))

	qp := processor.NewQueryProcessor(llmClient, semanticStore, dbClient).
		WithConversationStore(conversationStore).
		WithHealthChecker(healthChecker).
		WithQueryLimits(cfg.Query.MaxQueryLength, cfg.Query.HistoryTurns)

	router := qp.SetupRoutes(authManager)

	// Auth endpoints; the login path is on the middleware's skip list
	authAPI := router.Group("/api/v1")
	authAPI.Use(authManager.Middleware())
	auth.NewHandlers(authManager).SetupRoutes(authAPI)

	logger.Info(ctx, "Query service starting", map[string]interface{}{
		"port":  cfg.Server.Port,
		"model": cfg.Gemini.Model,
	})
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.Error(ctx, "Failed to start server", err, nil)
		log.Fatal("Failed to start server: ", err)
	}
}
