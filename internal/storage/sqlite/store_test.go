package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"todotracker/internal/filter"
	"todotracker/internal/models"
	"todotracker/internal/query"
	"todotracker/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(filepath.Join(t.TempDir(), "data", "todo.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTask(todoID, assigned string, status models.Status, due time.Time) models.TaskUpdate {
	return models.TaskUpdate{
		TodoID:      models.Ptr(todoID),
		Creator:     models.Ptr("creator"),
		Assigned:    models.Ptr(assigned),
		Status:      models.Ptr(status),
		Due:         models.Ptr(due),
		Title:       models.Ptr("title"),
		Description: models.Ptr("description"),
	}
}

func mustUpsert(t *testing.T, s *Store, u models.TaskUpdate) string {
	t.Helper()
	id, err := s.UpsertTask(context.Background(), u)
	if err != nil {
		t.Fatalf("upsert task: %v", err)
	}
	return id
}

func ids(tasks []models.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todo.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	due := time.Now().UTC().Truncate(time.Millisecond)
	id := mustUpsert(t, s, newTask("todo", "alice", models.StatusNew, due))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	tasks, err := s.QueryTasks(context.Background(), filter.TaskByID(id))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("provisioning must keep existing data, got %v", tasks)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestUpsertTaskRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	due := time.Date(2024, 3, 1, 10, 30, 0, 123000000, time.UTC)

	id, err := s.UpsertTask(ctx, newTask("todo-1", "alice", models.StatusNew, due))
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	tasks, err := s.QueryTasks(ctx, filter.TaskByID(id))
	if err != nil {
		t.Fatal(err)
	}
	want := models.Task{
		ID:          id,
		TodoID:      "todo-1",
		Creator:     "creator",
		Assigned:    "alice",
		Status:      models.StatusNew,
		Due:         due,
		Title:       "title",
		Description: "description",
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	got := tasks[0]
	if !got.Due.Equal(due) {
		t.Fatalf("due = %v, want %v", got.Due, due)
	}
	got.Due = want.Due
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestUpsertTaskPartialOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	id := mustUpsert(t, s, newTask("todo-1", "alice", models.StatusNew, due))
	_, err := s.UpsertTask(ctx, models.TaskUpdate{
		ID:     id,
		Status: models.Ptr(models.StatusDoing),
		Title:  models.Ptr("renamed"),
	})
	if err != nil {
		t.Fatalf("partial update: %v", err)
	}

	tasks, err := s.QueryTasks(ctx, filter.TaskByID(id))
	if err != nil {
		t.Fatal(err)
	}
	got := tasks[0]
	if got.Status != models.StatusDoing || got.Title != "renamed" {
		t.Fatalf("supplied fields not written: %+v", got)
	}
	if got.Description != "description" || got.Assigned != "alice" || !got.Due.Equal(due) || got.TodoID != "todo-1" {
		t.Fatalf("omitted fields must keep prior values: %+v", got)
	}
}

func TestUpsertTaskWithCallerID(t *testing.T) {
	s := openTestStore(t)
	u := newTask("todo-1", "alice", models.StatusNew, time.Now())
	u.ID = "my-id"
	if id := mustUpsert(t, s, u); id != "my-id" {
		t.Fatalf("caller id must be kept, got %q", id)
	}
}

func TestUpsertTaskValidationLeavesNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := newTask("todo-1", "alice", models.StatusNew, time.Now())
	u.ID = "broken"
	u.Status = nil

	_, err := s.UpsertTask(ctx, u)
	var ve *storage.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != models.FieldStatus {
		t.Fatalf("expected status field context, got %+v", ve)
	}

	tasks, err := s.QueryTasks(ctx, filter.TaskByID("broken"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("rejected write must not be visible, got %v", tasks)
	}
}

func TestUpsertTaskRejectsUnknownStatus(t *testing.T) {
	s := openTestStore(t)
	u := newTask("todo-1", "alice", models.Status("LATER"), time.Now())

	_, err := s.UpsertTask(context.Background(), u)
	var ve *storage.ValidationError
	if !errors.As(err, &ve) || ve.Field != models.FieldStatus {
		t.Fatalf("expected status rejection, got %v", err)
	}
}

func TestExpiringTasks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	end := now.AddDate(0, 0, 7)

	inRange := mustUpsert(t, s, newTask("todo", "alice", models.StatusNew, now.Add(24*time.Hour)))
	mustUpsert(t, s, newTask("todo", "alice", models.StatusDoing, now.Add(24*time.Hour)))
	mustUpsert(t, s, newTask("todo", "alice", models.StatusReview, now.Add(24*time.Hour)))
	mustUpsert(t, s, newTask("todo", "alice", models.StatusDone, now.Add(24*time.Hour)))
	mustUpsert(t, s, newTask("todo", "alice", models.StatusNew, now.Add(-time.Hour)))
	later := mustUpsert(t, s, newTask("todo", "alice", models.StatusNew, now.AddDate(0, 0, 8)))
	mustUpsert(t, s, newTask("todo", "bob", models.StatusNew, now.Add(time.Hour)))
	atEnd := mustUpsert(t, s, newTask("todo", "alice", models.StatusNew, end))

	tasks, err := s.ExpiringTasks(ctx, "alice", now, &end)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ids(tasks), []string{inRange, atEnd}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	tasks, err = s.ExpiringTasks(ctx, "alice", now, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ids(tasks), []string{inRange, later, atEnd}; !reflect.DeepEqual(got, want) {
		t.Fatalf("open window: got %v, want %v", got, want)
	}
}

func TestQueryTasksStatusUnion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	due := time.Now()

	n := mustUpsert(t, s, newTask("todo", "me", models.StatusNew, due))
	d := mustUpsert(t, s, newTask("todo", "me", models.StatusDoing, due))
	mustUpsert(t, s, newTask("todo", "me", models.StatusDone, due))

	f, err := query.Build(query.Params{Status: "new,doing"}, "me")
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := s.QueryTasks(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ids(tasks), []string{n, d}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestQueryTasksDayRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	jan5 := mustUpsert(t, s, newTask("todo", "me", models.StatusNew, time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)))
	mustUpsert(t, s, newTask("todo", "me", models.StatusNew, time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)))

	f, err := query.Build(query.Params{StartDay: "2024-01-01", EndDay: "2024-01-10"}, "me")
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := s.QueryTasks(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(tasks); !reflect.DeepEqual(got, []string{jan5}) {
		t.Fatalf("got %v", got)
	}

	f, err = query.Build(query.Params{StartDay: "2024-01-10", EndDay: "2024-01-01"}, "me")
	if err != nil {
		t.Fatal(err)
	}
	tasks, err = s.QueryTasks(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("inverted range must be empty, got %v", ids(tasks))
	}
}

func TestQueryTasksSubstringIsCaseSensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := newTask("todo", "me", models.StatusNew, time.Now())
	u.Title = models.Ptr("Fix login page")
	match := mustUpsert(t, s, u)
	u.Title = models.Ptr("fix logout")
	mustUpsert(t, s, u)

	f, err := query.Build(query.Params{Title: "Fix"}, "me")
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := s.QueryTasks(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(tasks); !reflect.DeepEqual(got, []string{match}) {
		t.Fatalf("got %v", got)
	}

	f, _ = query.Build(query.Params{Title: "%"}, "me")
	tasks, err = s.QueryTasks(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("wildcards must be literal, got %v", ids(tasks))
	}
}

func TestDeleteTodoKeepsTasks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	todoID, err := s.UpsertTodo(ctx, models.TodoUpdate{ID: "X", Username: models.Ptr("me")})
	if err != nil {
		t.Fatal(err)
	}
	taskID := mustUpsert(t, s, newTask(todoID, "me", models.StatusNew, time.Now()))

	n, err := s.DeleteTodos(ctx, filter.TodoByID(todoID))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed todo, got %d", n)
	}

	tasks, err := s.QueryTasks(ctx, filter.TasksOfTodo(todoID))
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(tasks); !reflect.DeepEqual(got, []string{taskID}) {
		t.Fatalf("tasks must survive todo deletion, got %v", got)
	}

	n, err = s.DeleteTodos(ctx, filter.TodoByID(todoID))
	if err != nil || n != 0 {
		t.Fatalf("deleting again should report zero, got %d, %v", n, err)
	}
}

func TestDeleteTasksByFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, newTask("a", "me", models.StatusNew, time.Now()))
	mustUpsert(t, s, newTask("a", "me", models.StatusDone, time.Now()))
	keep := mustUpsert(t, s, newTask("b", "me", models.StatusNew, time.Now()))

	n, err := s.DeleteTasks(ctx, filter.TasksOfTodo("a"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	all, _ := filter.Tasks()
	tasks, err := s.QueryTasks(ctx, all)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(tasks); !reflect.DeepEqual(got, []string{keep}) {
		t.Fatalf("got %v", got)
	}
}

func TestUpsertTodoMergesAttributes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertTodo(ctx, models.TodoUpdate{
		Username:   models.Ptr("me"),
		Attributes: map[string]any{"name": "groceries", "color": "red"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertTodo(ctx, models.TodoUpdate{ID: id, Attributes: map[string]any{"color": "blue"}}); err != nil {
		t.Fatalf("partial todo update: %v", err)
	}

	todos, err := s.QueryTodos(ctx, filter.TodoByID(id))
	if err != nil {
		t.Fatal(err)
	}
	want := models.Todo{ID: id, Username: "me", Attributes: map[string]any{"name": "groceries", "color": "blue"}}
	if len(todos) != 1 || !reflect.DeepEqual(todos[0], want) {
		t.Fatalf("got %#v, want %#v", todos, want)
	}
}

func TestUpsertTodoRequiresUsername(t *testing.T) {
	s := openTestStore(t)
	_, err := s.UpsertTodo(context.Background(), models.TodoUpdate{ID: "t"})
	var ve *storage.ValidationError
	if !errors.As(err, &ve) || ve.Field != models.FieldUsername {
		t.Fatalf("expected username rejection, got %v", err)
	}
}

func TestUpsertTodoRejectsUnstorableAttributeKeys(t *testing.T) {
	s := openTestStore(t)
	for _, key := range []string{"a.b", "$set"} {
		_, err := s.UpsertTodo(context.Background(), models.TodoUpdate{
			Username:   models.Ptr("me"),
			Attributes: map[string]any{key: "x"},
		})
		var ve *storage.ValidationError
		if !errors.As(err, &ve) || ve.Field != "attributes" {
			t.Fatalf("key %q: expected attributes rejection, got %v", key, err)
		}
	}
}

func TestUpsertTaskDueReadsBackAsWritten(t *testing.T) {
	s := openTestStore(t)
	due := time.Date(2030, 3, 4, 5, 6, 7, 891234567, time.UTC)
	u := newTask("todo", "alice", models.StatusNew, due)
	id := mustUpsert(t, s, u)

	tasks, err := s.QueryTasks(context.Background(), filter.TaskByID(id))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %+v", tasks)
	}
	if want := u.Fields()[models.FieldDue].(time.Time); !tasks[0].Due.Equal(want) {
		t.Fatalf("due = %v, want %v", tasks[0].Due, want)
	}
}

func TestQueryRejectsForeignFilter(t *testing.T) {
	s := openTestStore(t)
	_, err := s.QueryTasks(context.Background(), filter.TodoByID("x"))
	if !errors.Is(err, filter.ErrCollection) {
		t.Fatalf("expected ErrCollection, got %v", err)
	}
}

func TestConcurrentUpsertsLastWriteWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustUpsert(t, s, newTask("todo", "me", models.StatusNew, time.Now()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpsertTask(ctx, models.TaskUpdate{ID: id, Status: models.Ptr(models.StatusDoing)}); err != nil {
				t.Errorf("concurrent upsert: %v", err)
			}
		}()
	}
	wg.Wait()

	tasks, err := s.QueryTasks(ctx, filter.TaskByID(id))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Status != models.StatusDoing {
		t.Fatalf("unexpected result %+v", tasks)
	}
}
