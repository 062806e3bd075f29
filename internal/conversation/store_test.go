package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cr360/cr360/internal/llm"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, time.Hour), mr
}

func TestAppendAndHistory(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id := NewConversationID()
	require.NoError(t, store.Append(ctx, id, llm.ConversationTurn{
		User:      "what is the total outstanding balance",
		Assistant: "The latest portfolio balance is 1.2M.",
	}))
	require.NoError(t, store.Append(ctx, id, llm.ConversationTurn{
		User:      "and for the north region?",
		Assistant: "The north region holds 400K.",
	}))

	turns, err := store.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "what is the total outstanding balance", turns[0].User)
	assert.Equal(t, "The north region holds 400K.", turns[1].Assistant)
}

func TestHistoryUnknownConversation(t *testing.T) {
	store, _ := newTestStore(t)

	turns, err := store.History(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAppendSetsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "conv-ttl", llm.ConversationTurn{User: "hi"}))

	ttl := mr.TTL("conversation:conv-ttl")
	assert.Equal(t, time.Hour, ttl)
}

func TestAppendRefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "conv-refresh", llm.ConversationTurn{User: "first"}))
	mr.FastForward(30 * time.Minute)
	require.NoError(t, store.Append(ctx, "conv-refresh", llm.ConversationTurn{User: "second"}))

	assert.Equal(t, time.Hour, mr.TTL("conversation:conv-refresh"))
}

func TestConversationExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "conv-old", llm.ConversationTurn{User: "hello"}))
	mr.FastForward(2 * time.Hour)

	turns, err := store.History(ctx, "conv-old")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "conv-del", llm.ConversationTurn{User: "hi"}))
	require.NoError(t, store.Delete(ctx, "conv-del"))

	turns, err := store.History(ctx, "conv-del")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestNewConversationIDUnique(t *testing.T) {
	assert.NotEqual(t, NewConversationID(), NewConversationID())
}
