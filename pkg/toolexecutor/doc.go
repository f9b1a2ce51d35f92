// Package toolexecutor registers and executes the structured tools the model
// may invoke.
//
// Invariants:
// - Tool names are unique and registration order is preserved.
// - Parameters are schema-validated before the handler runs.
// - No failure crosses the boundary as a panic or error; every outcome is a ToolResult.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}, execCtx *toolexecutor.ExecutionContext) (interface{}, error) {
//			return params["text"], nil
//		},
//	})
package toolexecutor
