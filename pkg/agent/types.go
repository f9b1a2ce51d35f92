package agent

import (
	"strings"

	"github.com/harun/taskpilot/pkg/toolexecutor"
)

// Message represents a message in the conversation
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents one tool invocation requested by the model
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolCallRecord pairs an invocation with its result for the audit trail
type ToolCallRecord struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Input      map[string]interface{}  `json:"input"`
	Result     toolexecutor.ToolResult `json:"result"`
	DurationMS int64                   `json:"duration_ms"`
}

// Usage tracks token consumption accumulated across all rounds of a run
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add folds another round's usage into the total.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
}

// ModelConfig configures model behavior for a run
type ModelConfig struct {
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

// RunParams contains input parameters for one chat turn
type RunParams struct {
	UserID         string      `json:"user_id"`
	ConversationID string      `json:"conversation_id"`
	Message        string      `json:"message"`
	History        []Message   `json:"history,omitempty"`
	Config         ModelConfig `json:"config"`

	// OnToolCall, when set, is invoked synchronously after each tool
	// invocation completes. Used to stream tool activity to clients.
	OnToolCall func(ToolCallRecord) `json:"-"`
}

// RunResult contains the outcome of one chat turn
type RunResult struct {
	Text      string           `json:"text"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Usage     Usage            `json:"usage"`
	Turns     int              `json:"turns"`
}

// DefaultModelConfig returns default model configuration
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   4096,
	}
}

// IsRetryableError checks if a model call error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	// Network errors
	if strings.Contains(errMsg, "ECONNRESET") || strings.Contains(errMsg, "ETIMEDOUT") {
		return true
	}

	// Rate limits
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit") {
		return true
	}

	// Server errors
	if strings.Contains(errMsg, "500") || strings.Contains(errMsg, "502") ||
		strings.Contains(errMsg, "503") || strings.Contains(errMsg, "504") {
		return true
	}

	return false
}
