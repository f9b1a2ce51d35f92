package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(StoreConfig{
		DBPath: filepath.Join(t.TempDir(), "conversations.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestStore_CreateConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1", "Shopping list")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "Shopping list", conv.Title)

	got, err := store.GetConversation(ctx, conv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}

func TestStore_CreateConversation_DefaultTitle(t *testing.T) {
	store := newTestStore(t)

	conv, err := store.CreateConversation(context.Background(), "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, "New Conversation", conv.Title)
}

func TestStore_GetConversation_OwnershipHidden(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice", "Private")
	require.NoError(t, err)

	// A missing conversation and another user's conversation are
	// indistinguishable to the caller
	_, err = store.GetConversation(ctx, "no-such-id", "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetConversation(ctx, conv.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListConversations_RecentFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateConversation(ctx, "user-1", "First")
	require.NoError(t, err)
	second, err := store.CreateConversation(ctx, "user-1", "Second")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "someone-else", "Not mine")
	require.NoError(t, err)

	// Touch the first conversation so it becomes the most recent
	time.Sleep(10 * time.Millisecond)
	_, err = store.SaveMessage(ctx, SaveMessageInput{
		ConversationID: first.ID,
		Role:           "user",
		Content:        "bump",
	})
	require.NoError(t, err)

	conversations, err := store.ListConversations(ctx, "user-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, first.ID, conversations[0].ID)
	assert.Equal(t, second.ID, conversations[1].ID)
}

func TestStore_SaveMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1", "Chat")
	require.NoError(t, err)

	total := 42
	msg, err := store.SaveMessage(ctx, SaveMessageInput{
		ConversationID: conv.ID,
		Role:           "assistant",
		Content:        "Here you go",
		TotalTokens:    &total,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	messages, err := store.History(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "assistant", messages[0].Role)
	assert.Equal(t, "Here you go", messages[0].Content)
	require.NotNil(t, messages[0].TotalTokens)
	assert.Equal(t, 42, *messages[0].TotalTokens)
}

func TestStore_SaveMessage_RejectsInvalidRole(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1", "Chat")
	require.NoError(t, err)

	for _, role := range []string{"system", "tool", ""} {
		_, err := store.SaveMessage(ctx, SaveMessageInput{
			ConversationID: conv.ID,
			Role:           role,
			Content:        "nope",
		})
		assert.Error(t, err, "role %q should be rejected", role)
	}
}

func TestStore_History_ChronologicalOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1", "Chat")
	require.NoError(t, err)

	contents := []string{"one", "two", "three"}
	for _, c := range contents {
		_, err := store.SaveMessage(ctx, SaveMessageInput{
			ConversationID: conv.ID,
			Role:           "user",
			Content:        c,
		})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	messages, err := store.History(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, c := range contents {
		assert.Equal(t, c, messages[i].Content)
	}
}

func TestStore_MessageCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1", "Chat")
	require.NoError(t, err)

	count, err := store.MessageCount(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = store.SaveMessage(ctx, SaveMessageInput{ConversationID: conv.ID, Role: "user", Content: "hi"})
	require.NoError(t, err)

	count, err = store.MessageCount(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_SaveToolCall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1", "Chat")
	require.NoError(t, err)
	msg, err := store.SaveMessage(ctx, SaveMessageInput{ConversationID: conv.ID, Role: "assistant", Content: "done"})
	require.NoError(t, err)

	duration := int64(12)
	rec, err := store.SaveToolCall(ctx, SaveToolCallInput{
		MessageID:  msg.ID,
		ToolName:   "create_task",
		InputJSON:  `{"title":"Buy milk"}`,
		OutputJSON: `{"success":true}`,
		Status:     "success",
		DurationMS: &duration,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	records, err := store.ToolCalls(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "create_task", records[0].ToolName)
	assert.Equal(t, "success", records[0].Status)
	require.NotNil(t, records[0].DurationMS)
	assert.Equal(t, int64(12), *records[0].DurationMS)
}

func TestStore_DeleteConversation_Cascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1", "Doomed")
	require.NoError(t, err)
	msg, err := store.SaveMessage(ctx, SaveMessageInput{ConversationID: conv.ID, Role: "user", Content: "hi"})
	require.NoError(t, err)
	_, err = store.SaveToolCall(ctx, SaveToolCallInput{
		MessageID: msg.ID,
		ToolName:  "list_tasks",
		Status:    "success",
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteConversation(ctx, conv.ID, "user-1"))

	_, err = store.GetConversation(ctx, conv.ID, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	messages, err := store.History(ctx, conv.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, messages)

	records, err := store.ToolCalls(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_DeleteConversation_NotOwned(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice", "Private")
	require.NoError(t, err)

	err = store.DeleteConversation(ctx, conv.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	// Untouched
	_, err = store.GetConversation(ctx, conv.ID, "alice")
	assert.NoError(t, err)
}

func TestStore_UpdateTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1", "Old title")
	require.NoError(t, err)

	updated, err := store.UpdateTitle(ctx, conv.ID, "user-1", "New title")
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)

	_, err = store.UpdateTitle(ctx, conv.ID, "someone-else", "Hijacked")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SweepIdleBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stale, err := store.CreateConversation(ctx, "user-1", "Stale")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	cutoff := time.Now()
	time.Sleep(20 * time.Millisecond)

	fresh, err := store.CreateConversation(ctx, "user-1", "Fresh")
	require.NoError(t, err)

	removed, err := store.SweepIdleBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetConversation(ctx, stale.ID, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetConversation(ctx, fresh.ID, "user-1")
	assert.NoError(t, err)
}

func TestSweeper_Sweep(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateConversation(ctx, "user-1", "Ancient")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	sweeper, err := NewSweeper(SweeperConfig{
		Store:   store,
		Logger:  zerolog.Nop(),
		MaxIdle: time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, sweeper.Sweep(ctx))

	conversations, err := store.ListConversations(ctx, "user-1", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestNewSweeper_Defaults(t *testing.T) {
	store := newTestStore(t)

	sweeper, err := NewSweeper(SweeperConfig{Store: store})
	require.NoError(t, err)
	assert.Equal(t, 90*24*time.Hour, sweeper.maxIdle)
	assert.Equal(t, "0 3 * * *", sweeper.schedule)

	_, err = NewSweeper(SweeperConfig{})
	assert.Error(t, err)
}
