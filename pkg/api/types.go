package api

import "time"

// ChatRequest is the inbound payload for POST /api/chat
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// ToolCallSummary reports one tool invocation made during a turn
type ToolCallSummary struct {
	ToolName string `json:"tool_name"`
	Status   string `json:"status"`
}

// ChatResponse is the reply for POST /api/chat
type ChatResponse struct {
	ConversationID string            `json:"conversation_id"`
	MessageID      string            `json:"message_id"`
	Role           string            `json:"role"`
	Content        string            `json:"content"`
	CreatedAt      time.Time         `json:"created_at"`
	ToolCalls      []ToolCallSummary `json:"tool_calls"`
}

// ConversationSummary is one row of the conversation list
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// MessageDetail is one message in a conversation detail view
type MessageDetail struct {
	ID               string    `json:"id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty"`
	CompletionTokens *int      `json:"completion_tokens,omitempty"`
	TotalTokens      *int      `json:"total_tokens,omitempty"`
}

// ConversationDetail is a conversation with its full message history
type ConversationDetail struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []MessageDetail `json:"messages"`
}

// ErrorResponse is the uniform error payload
type ErrorResponse struct {
	Error string `json:"error"`
}

// wsInbound is one chat message received over the websocket
type wsInbound struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// wsEvent is one event pushed over the websocket
type wsEvent struct {
	Type           string `json:"type"` // "tool", "message", "error"
	ConversationID string `json:"conversation_id,omitempty"`
	ToolName       string `json:"tool_name,omitempty"`
	Status         string `json:"status,omitempty"`
	Content        string `json:"content,omitempty"`
}
