package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/taskpilot/internal/observability"
)

// Sentinel errors returned by store operations.
var (
	ErrNotFound      = errors.New("task not found")
	ErrNotAuthorized = errors.New("not authorized")
)

// Store provides owner-scoped task persistence
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// StoreConfig holds store configuration
type StoreConfig struct {
	DBPath string
	Logger zerolog.Logger
}

const taskSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT 'medium',
	due_date TIMESTAMP,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id);
`

// NewStore opens the task database and ensures the schema exists
func NewStore(cfg StoreConfig) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}

	if _, err := db.Exec(taskSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize task schema: %w", err)
	}

	cfg.Logger.Info().Str("db", cfg.DBPath).Msg("Task store initialized")

	return &Store{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new task for the user. Priority is coerced to medium
// when the supplied value is not a known level.
func (s *Store) Create(ctx context.Context, userID string, in CreateInput) (*Task, error) {
	if userID == "" {
		return nil, errors.New("user ID is required")
	}
	if in.Title == "" {
		return nil, errors.New("title is required")
	}

	now := time.Now().UTC()
	t := &Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    NormalizePriority(in.Priority),
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, priority, due_date, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, t.Priority, t.DueDate, t.Completed, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	observability.RecordTaskMutation("create")
	s.logger.Debug().Str("task_id", t.ID).Msg("Task created")

	return t, nil
}

// List returns the user's tasks matching the filter, newest first.
func (s *Store) List(ctx context.Context, userID string, f Filter) ([]*Task, error) {
	query := `SELECT id, user_id, title, description, priority, due_date, completed, created_at, updated_at
	          FROM tasks WHERE user_id = ?`
	args := []interface{}{userID}

	switch f.Status {
	case StatusCompleted:
		query += " AND completed = 1"
	case StatusPending:
		query += " AND completed = 0"
	}

	if f.Priority != "" {
		query += " AND priority = ?"
		args = append(args, f.Priority)
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// Get returns a single task owned by the user.
func (s *Store) Get(ctx context.Context, userID, taskID string) (*Task, error) {
	return s.fetchOwned(ctx, userID, taskID)
}

// Update applies a partial update. All supplied fields are validated
// before any of them is written, so a failed update leaves the task
// untouched. An invalid priority value is ignored rather than rejected.
func (s *Store) Update(ctx context.Context, userID, taskID string, in UpdateInput) (*Task, error) {
	t, err := s.fetchOwned(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Priority != nil && IsValidPriority(*in.Priority) {
		t.Priority = *in.Priority
	}
	if in.DueDate != nil {
		t.DueDate = in.DueDate
	}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}
	t.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, priority = ?, due_date = ?, completed = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		t.Title, t.Description, t.Priority, t.DueDate, t.Completed, t.UpdatedAt, t.ID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	observability.RecordTaskMutation("update")
	s.logger.Debug().Str("task_id", t.ID).Msg("Task updated")

	return t, nil
}

// Delete removes a task owned by the user and returns the removed row.
func (s *Store) Delete(ctx context.Context, userID, taskID string) (*Task, error) {
	t, err := s.fetchOwned(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID); err != nil {
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}

	observability.RecordTaskMutation("delete")
	s.logger.Debug().Str("task_id", taskID).Msg("Task deleted")

	return t, nil
}

// ToggleComplete flips the completion flag unconditionally.
func (s *Store) ToggleComplete(ctx context.Context, userID, taskID string) (*Task, error) {
	t, err := s.fetchOwned(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	t.Completed = !t.Completed
	t.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		t.Completed, t.UpdatedAt, t.ID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle task: %w", err)
	}

	observability.RecordTaskMutation("toggle")

	return t, nil
}

// fetchOwned loads a task by ID and validates ownership. The caller
// distinguishes a missing task from one owned by somebody else, but both
// surface as generic failures at the tool boundary.
func (s *Store) fetchOwned(ctx context.Context, userID, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, priority, due_date, completed, created_at, updated_at
		 FROM tasks WHERE id = ?`, taskID)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if t.UserID != userID {
		return nil, ErrNotAuthorized
	}

	return t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var due sql.NullTime

	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &due, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}

	return &t, nil
}
