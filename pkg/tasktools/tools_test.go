package tasktools

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/taskpilot/pkg/task"
	"github.com/harun/taskpilot/pkg/toolexecutor"
)

func newFixture(t *testing.T) (*toolexecutor.ToolExecutor, *task.Store) {
	t.Helper()

	store, err := task.NewStore(task.StoreConfig{
		DBPath: filepath.Join(t.TempDir(), "tasks.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	te := toolexecutor.New()
	require.NoError(t, Register(te, store))

	return te, store
}

func execCtx(userID string) *toolexecutor.ExecutionContext {
	return &toolexecutor.ExecutionContext{UserID: userID, ConversationID: "conv-1"}
}

func resultTask(t *testing.T, result toolexecutor.ToolResult) map[string]interface{} {
	t.Helper()
	require.True(t, result.Success, "tool failed: %s", result.Error)
	output, ok := result.Output.(map[string]interface{})
	require.True(t, ok)
	taskMap, ok := output["task"].(map[string]interface{})
	require.True(t, ok)
	return taskMap
}

func TestRegister_CatalogOrder(t *testing.T) {
	te, _ := newFixture(t)

	want := []string{
		ToolCreateTask,
		ToolListTasks,
		ToolGetTask,
		ToolUpdateTask,
		ToolDeleteTask,
		ToolToggleComplete,
	}
	assert.Equal(t, want, te.ListTools())

	// Every catalog entry must be executable
	for _, def := range te.Definitions() {
		assert.NotNil(t, def.Handler, "tool %s has no handler", def.Name)
		assert.NotEmpty(t, def.Description, "tool %s has no description", def.Name)
	}
}

func TestUnknownTool_NoMutation(t *testing.T) {
	te, store := newFixture(t)
	ctx := context.Background()

	result := te.Execute(ctx, "summon_tasks", map[string]interface{}{"title": "x"}, execCtx("user-1"))

	assert.False(t, result.Success)
	assert.Equal(t, "Unknown tool: summon_tasks", result.Error)

	tasks, err := store.List(ctx, "user-1", task.Filter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateTask(t *testing.T) {
	te, _ := newFixture(t)
	ctx := context.Background()

	result := te.Execute(ctx, ToolCreateTask, map[string]interface{}{
		"title":       "Buy groceries",
		"description": "Milk and eggs",
		"priority":    "high",
		"due_date":    "2026-09-15",
	}, execCtx("user-1"))

	taskMap := resultTask(t, result)
	assert.Equal(t, "Buy groceries", taskMap["title"])
	assert.Equal(t, "Milk and eggs", taskMap["description"])
	assert.Equal(t, "high", taskMap["priority"])
	assert.Equal(t, "2026-09-15T00:00:00Z", taskMap["due_date"])
	assert.Equal(t, false, taskMap["completed"])
}

func TestCreateTask_InvalidDueDate(t *testing.T) {
	te, store := newFixture(t)
	ctx := context.Background()

	result := te.Execute(ctx, ToolCreateTask, map[string]interface{}{
		"title":    "Bad date",
		"due_date": "next tuesday",
	}, execCtx("user-1"))

	assert.False(t, result.Success)
	assert.Equal(t, "Invalid due_date format: next tuesday. Use YYYY-MM-DD format.", result.Error)

	// Nothing was created
	tasks, err := store.List(ctx, "user-1", task.Filter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateTask_DueDateFormats(t *testing.T) {
	te, _ := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "date only", raw: "2026-09-15", want: "2026-09-15T00:00:00Z"},
		{name: "datetime", raw: "2026-09-15T10:30:00", want: "2026-09-15T10:30:00Z"},
		{name: "rfc3339", raw: "2026-09-15T10:30:00Z", want: "2026-09-15T10:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := te.Execute(ctx, ToolCreateTask, map[string]interface{}{
				"title":    "Dated task",
				"due_date": tt.raw,
			}, execCtx("user-1"))

			taskMap := resultTask(t, result)
			assert.Equal(t, tt.want, taskMap["due_date"])
		})
	}
}

func TestListTasks(t *testing.T) {
	te, _ := newFixture(t)
	ctx := context.Background()

	for _, in := range []map[string]interface{}{
		{"title": "First", "priority": "low"},
		{"title": "Second", "priority": "high"},
	} {
		result := te.Execute(ctx, ToolCreateTask, in, execCtx("user-1"))
		require.True(t, result.Success)
	}

	result := te.Execute(ctx, ToolListTasks, map[string]interface{}{}, execCtx("user-1"))
	require.True(t, result.Success)

	output := result.Output.(map[string]interface{})
	assert.Equal(t, 2, output["count"])

	// Filter narrows the result
	result = te.Execute(ctx, ToolListTasks, map[string]interface{}{"priority": "high"}, execCtx("user-1"))
	require.True(t, result.Success)
	output = result.Output.(map[string]interface{})
	assert.Equal(t, 1, output["count"])

	// A different user sees nothing
	result = te.Execute(ctx, ToolListTasks, map[string]interface{}{}, execCtx("user-2"))
	require.True(t, result.Success)
	output = result.Output.(map[string]interface{})
	assert.Equal(t, 0, output["count"])
}

func TestGetTask_NotFound(t *testing.T) {
	te, _ := newFixture(t)

	result := te.Execute(context.Background(), ToolGetTask, map[string]interface{}{
		"task_id": "missing-id",
	}, execCtx("user-1"))

	assert.False(t, result.Success)
	assert.Equal(t, "Task with ID missing-id not found", result.Error)
}

func TestGetTask_OtherUsersTask(t *testing.T) {
	te, store := newFixture(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "alice", task.CreateInput{Title: "Private"})
	require.NoError(t, err)

	result := te.Execute(ctx, ToolGetTask, map[string]interface{}{
		"task_id": created.ID,
	}, execCtx("bob"))

	assert.False(t, result.Success)
	assert.Equal(t, "Not authorized to access this task", result.Error)
}

func TestUpdateTask(t *testing.T) {
	te, store := newFixture(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "user-1", task.CreateInput{Title: "Original"})
	require.NoError(t, err)

	result := te.Execute(ctx, ToolUpdateTask, map[string]interface{}{
		"task_id":   created.ID,
		"title":     "Renamed",
		"completed": true,
	}, execCtx("user-1"))

	taskMap := resultTask(t, result)
	assert.Equal(t, "Renamed", taskMap["title"])
	assert.Equal(t, true, taskMap["completed"])
}

func TestUpdateTask_InvalidDueDateLeavesTaskUntouched(t *testing.T) {
	te, store := newFixture(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "user-1", task.CreateInput{
		Title:    "Stable",
		Priority: task.PriorityHigh,
	})
	require.NoError(t, err)

	result := te.Execute(ctx, ToolUpdateTask, map[string]interface{}{
		"task_id":  created.ID,
		"title":    "Should not apply",
		"priority": "low",
		"due_date": "whenever",
	}, execCtx("user-1"))

	assert.False(t, result.Success)
	assert.Equal(t, "Invalid due_date format: whenever", result.Error)

	// The valid fields in the same request were not applied either
	got, err := store.Get(ctx, "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stable", got.Title)
	assert.Equal(t, task.PriorityHigh, got.Priority)
	assert.Nil(t, got.DueDate)
}

func TestUpdateTask_NotFound(t *testing.T) {
	te, _ := newFixture(t)

	result := te.Execute(context.Background(), ToolUpdateTask, map[string]interface{}{
		"task_id": "missing-id",
		"title":   "Nope",
	}, execCtx("user-1"))

	assert.False(t, result.Success)
	assert.Equal(t, "Task with ID missing-id not found", result.Error)
}

func TestDeleteTask(t *testing.T) {
	te, store := newFixture(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "user-1", task.CreateInput{Title: "Doomed"})
	require.NoError(t, err)

	result := te.Execute(ctx, ToolDeleteTask, map[string]interface{}{
		"task_id": created.ID,
	}, execCtx("user-1"))

	require.True(t, result.Success)
	output := result.Output.(map[string]interface{})
	assert.Equal(t, "Task 'Doomed' has been deleted", output["message"])

	_, err = store.Get(ctx, "user-1", created.ID)
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestDeleteTask_OtherUsersTask(t *testing.T) {
	te, store := newFixture(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "alice", task.CreateInput{Title: "Private"})
	require.NoError(t, err)

	result := te.Execute(ctx, ToolDeleteTask, map[string]interface{}{
		"task_id": created.ID,
	}, execCtx("bob"))

	assert.False(t, result.Success)
	assert.Equal(t, "Not authorized to delete this task", result.Error)

	// Still there
	_, err = store.Get(ctx, "alice", created.ID)
	assert.NoError(t, err)
}

func TestToggleTaskComplete(t *testing.T) {
	te, store := newFixture(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "user-1", task.CreateInput{Title: "Toggle me"})
	require.NoError(t, err)

	result := te.Execute(ctx, ToolToggleComplete, map[string]interface{}{
		"task_id": created.ID,
	}, execCtx("user-1"))

	require.True(t, result.Success)
	output := result.Output.(map[string]interface{})
	assert.Equal(t, "Task 'Toggle me' marked as completed", output["message"])

	result = te.Execute(ctx, ToolToggleComplete, map[string]interface{}{
		"task_id": created.ID,
	}, execCtx("user-1"))

	require.True(t, result.Success)
	output = result.Output.(map[string]interface{})
	assert.Equal(t, "Task 'Toggle me' marked as pending", output["message"])
}

func TestParseDueDate(t *testing.T) {
	got, ok := parseDueDate("2026-09-15")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), got)

	_, ok = parseDueDate("15/09/2026")
	assert.False(t, ok)
}
