// Package task provides the owner-scoped task store backed by SQLite.
//
// Invariants:
// - Every read and mutation is filtered by the owning user ID.
// - A task owned by another user is reported as not authorized, never returned.
// - Every successful mutation bumps the task's UpdatedAt timestamp.
//
// Usage:
//
//	store, _ := task.NewStore(task.StoreConfig{DBPath: "/tmp/taskpilot.db", Logger: logger})
//	created, _ := store.Create(ctx, "user-1", task.CreateInput{Title: "buy milk"})
//	_ = created
package task
