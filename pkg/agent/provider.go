package agent

import (
	"context"
	"fmt"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for an LLM call
type LLMRequest struct {
	Model        string
	Messages     []Message
	Tools        []ToolSchema
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// ToolSchema is a provider-agnostic tool declaration sent with each call
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// LLMResponse contains the response from the model
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *Usage
}

// NewProvider creates an LLM provider by name. The provider is constructed
// once at process start and injected into the runner.
func NewProvider(name, apiKey string) (LLMProvider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
