// Package service exposes the logical todo and task operations consumed by the HTTP layer.
package service

import (
	"context"
	"time"

	"todotracker/internal/filter"
	"todotracker/internal/models"
	"todotracker/internal/query"
	"todotracker/internal/storage"
)

// DefaultDueDays is how far ahead a new task is due when no date is given.
const DefaultDueDays = 7

// Service implements the task and todo operations on top of a storage.Store.
// Identity is the fixed caller identity used for defaults.
type Service struct {
	store    storage.Store
	identity string
	now      func() time.Time
}

// New constructs a Service.
func New(store storage.Store, identity string) *Service {
	return &Service{store: store, identity: identity, now: time.Now}
}

// Identity returns the caller identity used for defaults.
func (s *Service) Identity() string {
	return s.identity
}

// TodoWithTasks is a todo and its tasks, read independently of each other.
type TodoWithTasks struct {
	Todo  *models.Todo  `json:"todo"`
	Tasks []models.Task `json:"tasks"`
}

// CreateTask stores a new task, filling creator, assignee, status, due date,
// title and description with defaults when they are absent.
func (s *Service) CreateTask(ctx context.Context, update models.TaskUpdate) (string, error) {
	if update.Creator == nil {
		update.Creator = models.Ptr(s.identity)
	}
	if update.Assigned == nil {
		update.Assigned = models.Ptr(s.identity)
	}
	if update.Status == nil {
		update.Status = models.Ptr(models.StatusNew)
	}
	if update.Due == nil {
		update.Due = models.Ptr(query.EndOfDay(s.now()).AddDate(0, 0, DefaultDueDays))
	}
	if update.Title == nil {
		update.Title = models.Ptr("")
	}
	if update.Description == nil {
		update.Description = models.Ptr("")
	}
	return s.store.UpsertTask(ctx, update)
}

// CreateOrUpdateTask writes only the supplied fields and returns the stored id.
func (s *Service) CreateOrUpdateTask(ctx context.Context, update models.TaskUpdate) (string, error) {
	return s.store.UpsertTask(ctx, update)
}

// GetTask returns the task with the given id, or nil.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	tasks, err := s.store.QueryTasks(ctx, filter.TaskByID(id))
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

// DeleteTask removes the task with the given id and reports how many records went away.
func (s *Service) DeleteTask(ctx context.Context, id string) (int64, error) {
	return s.store.DeleteTasks(ctx, filter.TaskByID(id))
}

// ListTasks runs a search built from loosely typed parameters.
func (s *Service) ListTasks(ctx context.Context, params query.Params) ([]models.Task, error) {
	f, err := query.Build(params, s.identity)
	if err != nil {
		return nil, err
	}
	return s.store.QueryTasks(ctx, f)
}

// ListExpiringTasks returns NEW tasks due soon for the requested assignee.
func (s *Service) ListExpiringTasks(ctx context.Context, params query.ExpiringParams) ([]models.Task, error) {
	w, err := query.ExpiringWindow(params, s.identity, s.now())
	if err != nil {
		return nil, err
	}
	return s.store.ExpiringTasks(ctx, w.Assignee, w.Start, &w.End)
}

// CreateOrUpdateTodo writes only the supplied fields and returns the stored id.
func (s *Service) CreateOrUpdateTodo(ctx context.Context, update models.TodoUpdate) (string, error) {
	return s.store.UpsertTodo(ctx, update)
}

// GetTodoWithTasks reads a todo and then its tasks. The two reads are not atomic.
func (s *Service) GetTodoWithTasks(ctx context.Context, id string) (TodoWithTasks, error) {
	todos, err := s.store.QueryTodos(ctx, filter.TodoByID(id))
	if err != nil {
		return TodoWithTasks{}, err
	}
	tasks, err := s.store.QueryTasks(ctx, filter.TasksOfTodo(id))
	if err != nil {
		return TodoWithTasks{}, err
	}

	out := TodoWithTasks{Tasks: tasks}
	if len(todos) > 0 {
		out.Todo = &todos[0]
	}
	if out.Tasks == nil {
		out.Tasks = []models.Task{}
	}
	return out, nil
}

// DeleteTodo removes the todo only; its tasks are left for the caller to clean up.
func (s *Service) DeleteTodo(ctx context.Context, id string) (int64, error) {
	return s.store.DeleteTodos(ctx, filter.TodoByID(id))
}
