package storage

import (
	"context"
	"log/slog"
	"time"

	"todotracker/internal/filter"
	"todotracker/internal/models"
)

// loggedStore logs every failed operation once and returns the error unchanged.
type loggedStore struct {
	next   Store
	logger *slog.Logger
}

// WithLogging wraps next so that failures are logged at the store boundary.
func WithLogging(next Store, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggedStore{next: next, logger: logger}
}

func (s *loggedStore) fail(op string, err error, attrs ...any) {
	if err == nil {
		return
	}
	args := append([]any{slog.String("op", op), slog.String("error", err.Error())}, attrs...)
	s.logger.Error("store operation failed", args...)
}

func (s *loggedStore) UpsertTask(ctx context.Context, update models.TaskUpdate) (string, error) {
	id, err := s.next.UpsertTask(ctx, update)
	s.fail("upsert_task", err, slog.String("id", update.ID))
	return id, err
}

func (s *loggedStore) UpsertTodo(ctx context.Context, update models.TodoUpdate) (string, error) {
	id, err := s.next.UpsertTodo(ctx, update)
	s.fail("upsert_todo", err, slog.String("id", update.ID))
	return id, err
}

func (s *loggedStore) DeleteTasks(ctx context.Context, f filter.Filter) (int64, error) {
	n, err := s.next.DeleteTasks(ctx, f)
	s.fail("delete_tasks", err, slog.String("filter", f.Key()))
	return n, err
}

func (s *loggedStore) DeleteTodos(ctx context.Context, f filter.Filter) (int64, error) {
	n, err := s.next.DeleteTodos(ctx, f)
	s.fail("delete_todos", err, slog.String("filter", f.Key()))
	return n, err
}

func (s *loggedStore) QueryTasks(ctx context.Context, f filter.Filter) ([]models.Task, error) {
	tasks, err := s.next.QueryTasks(ctx, f)
	s.fail("query_tasks", err, slog.String("filter", f.Key()))
	return tasks, err
}

func (s *loggedStore) QueryTodos(ctx context.Context, f filter.Filter) ([]models.Todo, error) {
	todos, err := s.next.QueryTodos(ctx, f)
	s.fail("query_todos", err, slog.String("filter", f.Key()))
	return todos, err
}

func (s *loggedStore) ExpiringTasks(ctx context.Context, assignee string, start time.Time, end *time.Time) ([]models.Task, error) {
	tasks, err := s.next.ExpiringTasks(ctx, assignee, start, end)
	s.fail("expiring_tasks", err, slog.String("assignee", assignee))
	return tasks, err
}

func (s *loggedStore) Close() error {
	err := s.next.Close()
	s.fail("close", err)
	return err
}
