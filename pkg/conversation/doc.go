// Package conversation persists conversations, messages, and the tool-call
// audit trail in SQLite.
//
// Invariants:
// - Conversation reads and deletes are validated against the owning user.
// - Saving a message bumps the parent conversation's updated_at.
// - Deleting a conversation removes its messages and tool-call records.
//
// Usage:
//
//	store, _ := conversation.NewStore(conversation.StoreConfig{DBPath: path, Logger: logger})
//	conv, _ := store.CreateConversation(ctx, "user-1", "New Conversation")
//	_, _ = store.SaveMessage(ctx, conversation.SaveMessageInput{ConversationID: conv.ID, Role: "user", Content: "hi"})
package conversation
