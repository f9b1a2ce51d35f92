package toolexecutor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
	return params["message"], nil
}

func TestToolExecutor_RegisterTool(t *testing.T) {
	te := New()

	def := ToolDefinition{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: []ToolParameter{
			{
				Name:        "input",
				Type:        "string",
				Description: "Input parameter",
				Required:    true,
			},
		},
		Handler: echoHandler,
	}

	err := te.RegisterTool(def)
	assert.NoError(t, err)

	tool := te.GetTool("test_tool")
	assert.NotNil(t, tool)
	assert.Equal(t, "test_tool", tool.Name)
}

func TestToolExecutor_RegisterTool_InvalidDefinition(t *testing.T) {
	te := New()

	tests := []struct {
		name string
		def  ToolDefinition
	}{
		{
			name: "empty name",
			def: ToolDefinition{
				Description: "Test",
				Handler:     echoHandler,
			},
		},
		{
			name: "empty description",
			def: ToolDefinition{
				Name:    "test",
				Handler: echoHandler,
			},
		},
		{
			name: "nil handler",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
			},
		},
		{
			name: "invalid parameter type",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
				Parameters: []ToolParameter{
					{Name: "x", Type: "decimal", Description: "bad type"},
				},
				Handler: echoHandler,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := te.RegisterTool(tt.def)
			assert.Error(t, err)
		})
	}
}

func TestToolExecutor_RegisterTool_Duplicate(t *testing.T) {
	te := New()

	def := ToolDefinition{
		Name:        "dup",
		Description: "First registration",
		Handler:     echoHandler,
	}
	require.NoError(t, te.RegisterTool(def))

	err := te.RegisterTool(def)
	assert.ErrorContains(t, err, "already registered")
}

func TestToolExecutor_Definitions_RegistrationOrder(t *testing.T) {
	te := New()

	names := []string{"zebra", "alpha", "middle"}
	for _, name := range names {
		require.NoError(t, te.RegisterTool(ToolDefinition{
			Name:        name,
			Description: "Ordered tool",
			Handler:     echoHandler,
		}))
	}

	defs := te.Definitions()
	require.Len(t, defs, 3)
	for i, def := range defs {
		assert.Equal(t, names[i], def.Name)
	}
	assert.Equal(t, names, te.ListTools())
}

func TestToolExecutor_Execute_Success(t *testing.T) {
	te := New()

	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "echo",
		Description: "Echo tool",
		Parameters: []ToolParameter{
			{
				Name:        "message",
				Type:        "string",
				Description: "Message to echo",
				Required:    true,
			},
		},
		Handler: echoHandler,
	}))

	result := te.Execute(context.Background(), "echo", map[string]interface{}{"message": "hello"}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Output)
	assert.Empty(t, result.Error)
}

func TestToolExecutor_Execute_UnknownTool(t *testing.T) {
	te := New()

	result := te.Execute(context.Background(), "nonexistent", nil, nil)

	assert.False(t, result.Success)
	assert.Equal(t, "Unknown tool: nonexistent", result.Error)
}

func TestToolExecutor_Execute_ValidationFailure(t *testing.T) {
	te := New()

	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "strict",
		Description: "Tool with a required parameter",
		Parameters: []ToolParameter{
			{
				Name:        "title",
				Type:        "string",
				Description: "Required title",
				Required:    true,
			},
		},
		Handler: echoHandler,
	}))

	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{name: "missing required", params: map[string]interface{}{}},
		{name: "wrong type", params: map[string]interface{}{"title": 42}},
		{name: "unknown field", params: map[string]interface{}{"title": "ok", "extra": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := te.Execute(context.Background(), "strict", tt.params, nil)
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, "parameter validation failed")
		})
	}
}

func TestToolExecutor_Execute_HandlerError(t *testing.T) {
	te := New()

	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "failing",
		Description: "Always fails",
		Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			return nil, errors.New("something went wrong")
		},
	}))

	result := te.Execute(context.Background(), "failing", nil, nil)

	assert.False(t, result.Success)
	assert.Equal(t, "something went wrong", result.Error)
}

func TestToolExecutor_Execute_HandlerPanic(t *testing.T) {
	te := New()

	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "panicky",
		Description: "Always panics",
		Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			panic("boom")
		},
	}))

	result := te.Execute(context.Background(), "panicky", nil, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool panicked")
	assert.Contains(t, result.Error, "boom")
}

func TestToolExecutor_Execute_Timeout(t *testing.T) {
	te := New()

	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "slow",
		Description: "Sleeps past the deadline",
		Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}))

	execCtx := &ExecutionContext{Timeout: 50 * time.Millisecond}
	result := te.Execute(context.Background(), "slow", nil, execCtx)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")
}

func TestToolExecutor_Execute_ExecutionContextPassthrough(t *testing.T) {
	te := New()

	var gotUserID string
	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "whoami",
		Description: "Reports the caller identity",
		Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			gotUserID = execCtx.UserID
			return execCtx.UserID, nil
		},
	}))

	execCtx := &ExecutionContext{UserID: "user-123", ConversationID: "conv-1"}
	result := te.Execute(context.Background(), "whoami", nil, execCtx)

	require.True(t, result.Success)
	assert.Equal(t, "user-123", gotUserID)
}

func TestToolExecutor_GetToolCount(t *testing.T) {
	te := New()
	assert.Equal(t, 0, te.GetToolCount())

	require.NoError(t, te.RegisterTool(ToolDefinition{
		Name:        "one",
		Description: "First",
		Handler:     echoHandler,
	}))
	assert.Equal(t, 1, te.GetToolCount())
}
