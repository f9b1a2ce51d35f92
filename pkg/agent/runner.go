package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/taskpilot/internal/observability"
	"github.com/harun/taskpilot/pkg/toolexecutor"
)

// ErrTurnLimit is returned when the model keeps requesting tools past
// the configured round cap.
var ErrTurnLimit = errors.New("maximum tool execution turns exceeded")

// Runner orchestrates the model tool-calling loop
type Runner struct {
	provider     LLMProvider
	toolExecutor *toolexecutor.ToolExecutor
	logger       zerolog.Logger
	maxTurns     int
	callTimeout  time.Duration
	maxRetries   int
}

// Config holds runner configuration
type Config struct {
	Provider     LLMProvider
	ToolExecutor *toolexecutor.ToolExecutor
	Logger       zerolog.Logger
	MaxTurns     int           // cap on model round-trips per run (default 10)
	CallTimeout  time.Duration // per model call (default 60s)
	MaxRetries   int           // retries per model call (default 3)
}

// NewRunner creates a new runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.ToolExecutor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	return &Runner{
		provider:     cfg.Provider,
		toolExecutor: cfg.ToolExecutor,
		logger:       cfg.Logger,
		maxTurns:     cfg.MaxTurns,
		callTimeout:  cfg.CallTimeout,
		maxRetries:   cfg.MaxRetries,
	}, nil
}

// Run executes one chat turn: it alternates between model calls and tool
// execution until the model answers without requesting tools. Token usage
// is accumulated across every round of the run.
func (r *Runner) Run(ctx context.Context, params RunParams) (RunResult, error) {
	logger := r.logger.With().
		Str("user_id", params.UserID).
		Str("conversation_id", params.ConversationID).
		Logger()

	start := time.Now()

	messages := r.buildMessages(params)
	tools := r.buildToolSchemas()

	records := []ToolCallRecord{}
	usage := Usage{}

	for turn := 0; turn < r.maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return RunResult{}, ctx.Err()
		default:
		}

		response, err := r.callModelWithRetry(ctx, messages, tools, params.Config)
		if err != nil {
			observability.RecordAgentRun(r.provider.Provider(), time.Since(start), turn+1, false)
			logger.Error().Err(err).Int("turn", turn).Msg("Model call failed")
			return RunResult{}, err
		}

		usage.Add(response.Usage)
		if response.Usage != nil {
			observability.RecordTokenUsage(r.provider.Provider(), response.Usage.PromptTokens, response.Usage.CompletionTokens)
		}

		// No tool calls - the response text is the final answer
		if len(response.ToolCalls) == 0 {
			observability.RecordAgentRun(r.provider.Provider(), time.Since(start), turn+1, true)
			logger.Debug().
				Int("turns", turn+1).
				Int("tool_calls", len(records)).
				Msg("Run completed")
			return RunResult{
				Text:      response.Content,
				ToolCalls: records,
				Usage:     usage,
				Turns:     turn + 1,
			}, nil
		}

		// Execute the round's invocations strictly sequentially, in the
		// order the model listed them.
		toolMessages := make([]Message, 0, len(response.ToolCalls))
		for _, call := range response.ToolCalls {
			callStart := time.Now()
			result := r.toolExecutor.Execute(ctx, call.Name, call.Parameters, &toolexecutor.ExecutionContext{
				UserID:         params.UserID,
				ConversationID: params.ConversationID,
			})

			record := ToolCallRecord{
				ID:         call.ID,
				Name:       call.Name,
				Input:      call.Parameters,
				Result:     result,
				DurationMS: time.Since(callStart).Milliseconds(),
			}
			records = append(records, record)

			if params.OnToolCall != nil {
				params.OnToolCall(record)
			}

			toolMessages = append(toolMessages, Message{
				Role:       "tool",
				Content:    encodeToolResult(result),
				ToolCallID: call.ID,
			})
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})
		messages = append(messages, toolMessages...)
	}

	observability.RecordAgentRun(r.provider.Provider(), time.Since(start), r.maxTurns, false)
	logger.Error().Int("max_turns", r.maxTurns).Msg("Turn limit exceeded")

	return RunResult{}, fmt.Errorf("%w (limit %d)", ErrTurnLimit, r.maxTurns)
}

// buildMessages constructs the message array for the model
func (r *Runner) buildMessages(params RunParams) []Message {
	messages := make([]Message, 0, len(params.History)+1)
	messages = append(messages, params.History...)
	messages = append(messages, Message{
		Role:    "user",
		Content: params.Message,
	})
	return messages
}

// buildToolSchemas converts the executor's catalog into provider-agnostic
// tool declarations. The catalog and the handlers come from the same
// definitions, so what the model is told always matches what runs.
func (r *Runner) buildToolSchemas() []ToolSchema {
	defs := r.toolExecutor.Definitions()
	schemas := make([]ToolSchema, 0, len(defs))

	for _, def := range defs {
		properties := make(map[string]interface{})
		required := []string{}

		for _, param := range def.Parameters {
			properties[param.Name] = map[string]interface{}{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}

		inputSchema := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			inputSchema["required"] = required
		}

		schemas = append(schemas, ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema,
		})
	}

	return schemas
}

// callModelWithRetry calls the model with exponential backoff on retryable errors
func (r *Runner) callModelWithRetry(ctx context.Context, messages []Message, tools []ToolSchema, cfg ModelConfig) (*LLMResponse, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		response, err := r.provider.Call(callCtx, LLMRequest{
			Model:        cfg.Model,
			Messages:     messages,
			Tools:        tools,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
			SystemPrompt: cfg.SystemPrompt,
		})
		cancel()

		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		if attempt == r.maxRetries-1 {
			break
		}

		// Exponential backoff: 1s, 2s, 4s
		delay := time.Duration(1000*(1<<attempt)) * time.Millisecond
		r.logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after model error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.maxRetries, lastErr)
}

// encodeToolResult serializes a tool result for the model's tool message.
func encodeToolResult(result toolexecutor.ToolResult) string {
	payload := map[string]interface{}{
		"success": result.Success,
	}
	if result.Success {
		payload["output"] = result.Output
	} else {
		payload["error"] = result.Error
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to encode tool result: %v"}`, err)
	}
	return string(encoded)
}
