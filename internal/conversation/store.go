// Package conversation persists chat threads in Redis so follow-up queries
// can reference earlier answers.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/cr360/cr360/internal/llm"
)

const conversationPrefix = "conversation:"

// Store handles conversation storage and retrieval. Each conversation is a
// Redis list of JSON-encoded turns; every append refreshes the TTL so active
// threads stay alive and abandoned ones expire.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a conversation store
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	return &Store{
		redis: redisClient,
		ttl:   ttl,
	}
}

// NewConversationID generates an identifier for a fresh thread
func NewConversationID() string {
	return uuid.New().String()
}

// Append adds one turn to a conversation and refreshes its expiry
func (s *Store) Append(ctx context.Context, conversationID string, turn llm.ConversationTurn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := conversationPrefix + conversationID
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store turn: %w", err)
	}

	return nil
}

// History returns all turns of a conversation in order. An unknown
// conversation yields an empty history, not an error.
func (s *Store) History(ctx context.Context, conversationID string) ([]llm.ConversationTurn, error) {
	key := conversationPrefix + conversationID
	entries, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	turns := make([]llm.ConversationTurn, 0, len(entries))
	for _, entry := range entries {
		var turn llm.ConversationTurn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}

	return turns, nil
}

// Delete removes a conversation
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	key := conversationPrefix + conversationID
	return s.redis.Del(ctx, key).Err()
}

// Ping verifies the Redis backend is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
