// Package tasktools declares the task-management tool catalog.
//
// Each tool is declared exactly once with both the parameter schema the
// model sees and the handler the executor runs, so the catalog and the
// executor cannot drift apart.
package tasktools
