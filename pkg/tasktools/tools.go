package tasktools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/taskpilot/pkg/task"
	"github.com/harun/taskpilot/pkg/toolexecutor"
)

// Tool names exposed to the model.
const (
	ToolCreateTask     = "create_task"
	ToolListTasks      = "list_tasks"
	ToolGetTask        = "get_task"
	ToolUpdateTask     = "update_task"
	ToolDeleteTask     = "delete_task"
	ToolToggleComplete = "toggle_task_complete"
)

// Register registers the full task tool catalog against the executor.
func Register(te *toolexecutor.ToolExecutor, store *task.Store) error {
	for _, def := range Definitions(store) {
		if err := te.RegisterTool(def); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}
	return nil
}

// Definitions returns the catalog in its canonical order. Handlers close
// over the store; the caller identity arrives through the execution context.
func Definitions(store *task.Store) []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{
		{
			Name:        ToolCreateTask,
			Description: "Create a new task for the user with title, optional description, priority, and due date",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "title", Type: "string", Description: "The task title (required)", Required: true},
				{Name: "description", Type: "string", Description: "Optional task description", Required: false},
				{Name: "priority", Type: "string", Description: "Task priority: low, medium, or high (default: medium)", Required: false},
				{Name: "due_date", Type: "string", Description: "Due date in ISO format (YYYY-MM-DD) or null", Required: false},
			},
			Handler: createTaskHandler(store),
		},
		{
			Name:        ToolListTasks,
			Description: "List all tasks for the user with optional filters",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "status", Type: "string", Description: "Filter by status: 'pending' (not completed) or 'completed'", Required: false},
				{Name: "priority", Type: "string", Description: "Filter by priority: low, medium, or high", Required: false},
			},
			Handler: listTasksHandler(store),
		},
		{
			Name:        ToolGetTask,
			Description: "Get details of a specific task by ID",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "task_id", Type: "string", Description: "The task ID", Required: true},
			},
			Handler: getTaskHandler(store),
		},
		{
			Name:        ToolUpdateTask,
			Description: "Update task fields (title, description, priority, due_date, completed status)",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "task_id", Type: "string", Description: "The task ID to update", Required: true},
				{Name: "title", Type: "string", Description: "New task title", Required: false},
				{Name: "description", Type: "string", Description: "New task description", Required: false},
				{Name: "priority", Type: "string", Description: "New priority: low, medium, or high", Required: false},
				{Name: "due_date", Type: "string", Description: "New due date in ISO format (YYYY-MM-DD)", Required: false},
				{Name: "completed", Type: "boolean", Description: "New completion status (true or false)", Required: false},
			},
			Handler: updateTaskHandler(store),
		},
		{
			Name:        ToolDeleteTask,
			Description: "Delete a task by ID",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "task_id", Type: "string", Description: "The task ID to delete", Required: true},
			},
			Handler: deleteTaskHandler(store),
		},
		{
			Name:        ToolToggleComplete,
			Description: "Toggle task completion status (mark as complete or incomplete)",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "task_id", Type: "string", Description: "The task ID to toggle", Required: true},
			},
			Handler: toggleTaskHandler(store),
		},
	}
}

func createTaskHandler(store *task.Store) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}, execCtx *toolexecutor.ExecutionContext) (interface{}, error) {
		title, _ := stringArg(params, "title")
		if title == "" {
			return nil, errors.New("title is required")
		}

		in := task.CreateInput{Title: title}
		if desc, ok := stringArg(params, "description"); ok {
			in.Description = desc
		}
		if prio, ok := stringArg(params, "priority"); ok {
			in.Priority = prio
		}
		if raw, ok := stringArg(params, "due_date"); ok && raw != "" {
			due, ok := parseDueDate(raw)
			if !ok {
				return nil, fmt.Errorf("Invalid due_date format: %s. Use YYYY-MM-DD format.", raw)
			}
			in.DueDate = &due
		}

		t, err := store.Create(ctx, execCtx.UserID, in)
		if err != nil {
			return nil, err
		}

		return map[string]interface{}{"task": t.Map()}, nil
	}
}

func listTasksHandler(store *task.Store) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}, execCtx *toolexecutor.ExecutionContext) (interface{}, error) {
		var f task.Filter
		if status, ok := stringArg(params, "status"); ok {
			f.Status = status
		}
		if prio, ok := stringArg(params, "priority"); ok {
			f.Priority = prio
		}

		tasks, err := store.List(ctx, execCtx.UserID, f)
		if err != nil {
			return nil, err
		}

		serialized := make([]map[string]interface{}, 0, len(tasks))
		for _, t := range tasks {
			serialized = append(serialized, t.Map())
		}

		return map[string]interface{}{
			"count": len(tasks),
			"tasks": serialized,
		}, nil
	}
}

func getTaskHandler(store *task.Store) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}, execCtx *toolexecutor.ExecutionContext) (interface{}, error) {
		taskID, _ := stringArg(params, "task_id")

		t, err := store.Get(ctx, execCtx.UserID, taskID)
		if err != nil {
			return nil, storeError(err, taskID, "access")
		}

		return map[string]interface{}{"task": t.Map()}, nil
	}
}

func updateTaskHandler(store *task.Store) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}, execCtx *toolexecutor.ExecutionContext) (interface{}, error) {
		taskID, _ := stringArg(params, "task_id")

		// All fields are validated before any write so a bad due_date
		// cannot leave a half-applied update behind.
		var in task.UpdateInput
		if title, ok := stringArg(params, "title"); ok {
			in.Title = &title
		}
		if desc, ok := stringArg(params, "description"); ok {
			in.Description = &desc
		}
		if prio, ok := stringArg(params, "priority"); ok {
			in.Priority = &prio
		}
		if raw, ok := stringArg(params, "due_date"); ok && raw != "" {
			due, ok := parseDueDate(raw)
			if !ok {
				return nil, fmt.Errorf("Invalid due_date format: %s", raw)
			}
			in.DueDate = &due
		}
		if completed, ok := boolArg(params, "completed"); ok {
			in.Completed = &completed
		}

		t, err := store.Update(ctx, execCtx.UserID, taskID, in)
		if err != nil {
			return nil, storeError(err, taskID, "modify")
		}

		return map[string]interface{}{"task": t.Map()}, nil
	}
}

func deleteTaskHandler(store *task.Store) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}, execCtx *toolexecutor.ExecutionContext) (interface{}, error) {
		taskID, _ := stringArg(params, "task_id")

		t, err := store.Delete(ctx, execCtx.UserID, taskID)
		if err != nil {
			return nil, storeError(err, taskID, "delete")
		}

		return map[string]interface{}{
			"message": fmt.Sprintf("Task '%s' has been deleted", t.Title),
		}, nil
	}
}

func toggleTaskHandler(store *task.Store) toolexecutor.ToolHandler {
	return func(ctx context.Context, params map[string]interface{}, execCtx *toolexecutor.ExecutionContext) (interface{}, error) {
		taskID, _ := stringArg(params, "task_id")

		t, err := store.ToggleComplete(ctx, execCtx.UserID, taskID)
		if err != nil {
			return nil, storeError(err, taskID, "modify")
		}

		state := "pending"
		if t.Completed {
			state = "completed"
		}

		return map[string]interface{}{
			"task":    t.Map(),
			"message": fmt.Sprintf("Task '%s' marked as %s", t.Title, state),
		}, nil
	}
}

// storeError maps store sentinels to the messages surfaced to the model.
// Ownership failures stay generic so nothing about the task leaks.
func storeError(err error, taskID, verb string) error {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return fmt.Errorf("Task with ID %s not found", taskID)
	case errors.Is(err, task.ErrNotAuthorized):
		return fmt.Errorf("Not authorized to %s this task", verb)
	default:
		return err
	}
}

var dueDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDueDate(raw string) (time.Time, bool) {
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func stringArg(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolArg(params map[string]interface{}, key string) (bool, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
