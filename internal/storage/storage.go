// Package storage defines the record store contract shared by the SQLite and
// MongoDB backends and the decorators layered on top of them.
package storage

import (
	"context"
	"fmt"
	"time"

	"todotracker/internal/filter"
	"todotracker/internal/models"
)

// Store is the persistence contract for todos and tasks.
type Store interface {
	// UpsertTask writes the supplied task fields, creating the record when needed,
	// and returns the stored id.
	UpsertTask(ctx context.Context, update models.TaskUpdate) (string, error)
	UpsertTodo(ctx context.Context, update models.TodoUpdate) (string, error)
	DeleteTasks(ctx context.Context, f filter.Filter) (int64, error)
	DeleteTodos(ctx context.Context, f filter.Filter) (int64, error)
	QueryTasks(ctx context.Context, f filter.Filter) ([]models.Task, error)
	QueryTodos(ctx context.Context, f filter.Filter) ([]models.Todo, error)
	// ExpiringTasks returns NEW tasks of assignee due in [start, end]. A zero start
	// means now and a nil end leaves the window open.
	ExpiringTasks(ctx context.Context, assignee string, start time.Time, end *time.Time) ([]models.Task, error)
	Close() error
}

// ExpiringFilter resolves the defaults of an expiring lookup into a task filter.
func ExpiringFilter(assignee string, start time.Time, end *time.Time) filter.Filter {
	if start.IsZero() {
		start = time.Now()
	}
	return filter.Expiring(assignee, start, end)
}

// ValidationError reports a document rejected by a collection validator.
type ValidationError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s document failed validation: %s", e.Collection, e.Reason)
	}
	return fmt.Sprintf("%s document failed validation: %s: %s", e.Collection, e.Field, e.Reason)
}
