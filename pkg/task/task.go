package task

import (
	"time"
)

// Priority levels accepted for a task.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Status filter values accepted by List.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Task represents a single task row
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateInput contains fields for creating a task
type CreateInput struct {
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
}

// UpdateInput contains fields for a partial update. Nil pointers mean
// the field is left untouched.
type UpdateInput struct {
	Title       *string
	Description *string
	Priority    *string
	DueDate     *time.Time
	Completed   *bool
}

// Filter narrows List results. Empty fields mean no filter.
type Filter struct {
	Status   string
	Priority string
}

// IsValidPriority reports whether p is one of the accepted priority levels.
func IsValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// NormalizePriority coerces unknown priority values to medium.
func NormalizePriority(p string) string {
	if !IsValidPriority(p) {
		return PriorityMedium
	}
	return p
}

// Map serializes a task for tool results sent back to the model.
func (t *Task) Map() map[string]interface{} {
	m := map[string]interface{}{
		"id":         t.ID,
		"title":      t.Title,
		"priority":   t.Priority,
		"completed":  t.Completed,
		"created_at": t.CreatedAt.Format(time.RFC3339),
		"updated_at": t.UpdatedAt.Format(time.RFC3339),
	}

	if t.Description != "" {
		m["description"] = t.Description
	} else {
		m["description"] = nil
	}

	if t.DueDate != nil {
		m["due_date"] = t.DueDate.Format(time.RFC3339)
	} else {
		m["due_date"] = nil
	}

	return m
}
