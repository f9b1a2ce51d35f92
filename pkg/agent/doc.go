// Package agent drives the model tool-calling loop for a single chat turn.
//
// Invariants:
// - One outstanding model call or tool execution at a time; tool invocations
//   within a round run strictly sequentially, in the order the model listed them.
// - The loop terminates when a model response carries no tool invocations, or
//   when the configured turn cap is reached.
// - Per-tool failures become tool results fed back to the model; only a
//   failure of the model call itself ends the run early.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{Provider: provider, ToolExecutor: exec, Logger: logger})
//	result, _ := runner.Run(ctx, agent.RunParams{
//		UserID:  "user-1",
//		Message: "add a task to buy milk",
//		Config:  agent.DefaultModelConfig(),
//	})
//	_ = result
package agent
