package toolexecutor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/taskpilot/internal/observability"
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler is the function signature for tool execution. The execution
// context carries the caller identity every handler must scope its work to.
type ToolHandler func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error)

// ExecutionContext provides runtime information for tool execution
type ExecutionContext struct {
	UserID         string
	ConversationID string
	Timeout        time.Duration
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Success  bool                   `json:"success"`
	Output   interface{}            `json:"output,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToolExecutor manages and executes tools
type ToolExecutor struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	order   []string
	mu      sync.RWMutex
}

// New creates a new ToolExecutor
func New() *ToolExecutor {
	observability.EnsureRegistered()

	te := &ToolExecutor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}

	log.Info().Msg("Tool executor initialized")

	return te
}

// RegisterTool registers a new tool
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := te.validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := te.generateJSONSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema
	te.order = append(te.order, def.Name)

	log.Info().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// GetTool returns a tool definition by name
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return te.tools[name]
}

// ListTools returns all registered tool names in registration order
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	names := make([]string, len(te.order))
	copy(names, te.order)

	return names
}

// Definitions returns all tool definitions in registration order. This is
// the catalog presented to the model on every call.
func (te *ToolExecutor) Definitions() []*ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	defs := make([]*ToolDefinition, 0, len(te.order))
	for _, name := range te.order {
		defs = append(defs, te.tools[name])
	}

	return defs
}

// GetToolCount returns the number of registered tools
func (te *ToolExecutor) GetToolCount() int {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return len(te.tools)
}

// Execute executes a tool with the given parameters. It never returns an
// error: every failure path, including a panicking handler, is converted
// into a ToolResult so the caller needs no recovery logic of its own.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]interface{}, execCtx *ExecutionContext) ToolResult {
	startTime := time.Now()

	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	te.mu.RUnlock()

	if tool == nil {
		log.Warn().Str("tool", toolName).Msg("Unknown tool requested")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("Unknown tool: %s", toolName),
		}
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	if err := te.validateParameters(schema, params); err != nil {
		log.Error().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("parameter validation failed: %v", err),
		}
	}

	log.Debug().Str("tool", toolName).Msg("Executing tool")

	timeout := 30 * time.Second
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool panicked: %v", r)
			}
		}()
		result, err := tool.Handler(timeoutCtx, params, execCtx)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, true)

		log.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("Tool execution completed")

		return ToolResult{
			Success: true,
			Output:  result,
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
			},
		}

	case err := <-errChan:
		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, false)

		log.Error().
			Str("tool", toolName).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")

		return ToolResult{
			Success: false,
			Error:   err.Error(),
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
			},
		}

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, false)

		log.Error().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("Tool execution timeout")

		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool execution timeout after %v", timeout),
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
			},
		}
	}
}

// validateToolDefinition validates a tool definition
func (te *ToolExecutor) validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}

		validTypes := map[string]bool{
			"string": true, "number": true, "boolean": true,
			"object": true, "array": true, "integer": true,
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// generateJSONSchema generates a JSON Schema from tool parameters
func (te *ToolExecutor) generateJSONSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           make(map[string]interface{}),
	}

	properties := schemaMap["properties"].(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}

		if param.Default != nil {
			paramSchema["default"] = param.Default
		}

		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	if len(required) > 0 {
		schemaMap["required"] = required
	}

	schemaLoader := gojsonschema.NewGoLoader(schemaMap)
	schema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		return nil, err
	}

	return schema, nil
}

// validateParameters validates parameters against a JSON Schema
func (te *ToolExecutor) validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	paramsLoader := gojsonschema.NewGoLoader(params)
	result, err := schema.Validate(paramsLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}
