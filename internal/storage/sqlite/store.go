package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"todotracker/internal/filter"
	"todotracker/internal/models"
	"todotracker/internal/storage"
	"todotracker/internal/storage/schema"
)

// Store wraps access to the SQLite database and implements storage.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	newID  func() string
}

var _ storage.Store = (*Store)(nil)

// Open initializes a new SQLite store and provisions tables and indexes.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger, newID: uuid.NewString}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todo (
            id TEXT PRIMARY KEY NOT NULL CHECK (id <> ''),
            username TEXT NOT NULL CHECK (username <> ''),
            attributes TEXT NOT NULL DEFAULT '{}'
        );`,
		`CREATE TABLE IF NOT EXISTS task (
            id TEXT PRIMARY KEY NOT NULL CHECK (id <> ''),
            todo_id TEXT NOT NULL,
            creator TEXT NOT NULL,
            assigned TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL CHECK (status IN ('NEW', 'DOING', 'REVIEW', 'DONE')),
            due INTEGER NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_task_todo ON task(todo_id);`,
		`CREATE INDEX IF NOT EXISTS idx_task_assigned_status_due ON task(assigned, status, due);`,
		`CREATE INDEX IF NOT EXISTS idx_task_creator ON task(creator);`,
	}

	s.logger.Info("provisioning collections and indexes")
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	s.logger.Info("store ready")
	return nil
}

const taskColumns = `id, todo_id, creator, assigned, status, due, title, description`

// UpsertTask merges the supplied fields into the task identified by update.ID,
// creating it when absent. The merged document must pass the task validator.
func (s *Store) UpsertTask(ctx context.Context, update models.TaskUpdate) (string, error) {
	id := update.ID
	if id == "" {
		id = s.newID()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		doc := schema.Document{}
		current, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task WHERE id = ?`, id))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("get task: %w", err)
		default:
			doc = taskDocument(current)
		}

		doc[models.FieldID] = id
		for k, v := range update.Fields() {
			doc[k] = v
		}
		if err := schema.Validate(models.CollectionTask, doc); err != nil {
			return err
		}

		t := taskFromDocument(doc)
		_, err = tx.ExecContext(ctx, `INSERT INTO task(`+taskColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                todo_id = excluded.todo_id,
                creator = excluded.creator,
                assigned = excluded.assigned,
                status = excluded.status,
                due = excluded.due,
                title = excluded.title,
                description = excluded.description`,
			t.ID, t.TodoID, t.Creator, t.Assigned, string(t.Status), t.Due.UnixMilli(), t.Title, t.Description)
		if err != nil {
			return fmt.Errorf("upsert task: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpsertTodo merges the supplied fields into the todo identified by update.ID.
// Attributes are merged key by key.
func (s *Store) UpsertTodo(ctx context.Context, update models.TodoUpdate) (string, error) {
	id := update.ID
	if id == "" {
		id = s.newID()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		doc := schema.Document{}
		attrs := map[string]any{}
		current, err := scanTodo(tx.QueryRowContext(ctx, `SELECT id, username, attributes FROM todo WHERE id = ?`, id))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("get todo: %w", err)
		default:
			doc[models.FieldUsername] = current.Username
			for k, v := range current.Attributes {
				attrs[k] = v
			}
		}

		doc[models.FieldID] = id
		for k, v := range update.Fields() {
			doc[k] = v
		}
		for k, v := range update.Attributes {
			attrs[k] = v
		}
		doc["attributes"] = attrs
		if err := schema.Validate(models.CollectionTodo, doc); err != nil {
			return err
		}

		raw, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO todo(id, username, attributes) VALUES(?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET username = excluded.username, attributes = excluded.attributes`,
			id, doc[models.FieldUsername], string(raw))
		if err != nil {
			return fmt.Errorf("upsert todo: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteTasks removes every task matching f and returns the number removed.
func (s *Store) DeleteTasks(ctx context.Context, f filter.Filter) (int64, error) {
	return s.delete(ctx, models.CollectionTask, f)
}

// DeleteTodos removes every todo matching f. Tasks of removed todos are kept.
func (s *Store) DeleteTodos(ctx context.Context, f filter.Filter) (int64, error) {
	return s.delete(ctx, models.CollectionTodo, f)
}

func (s *Store) delete(ctx context.Context, collection string, f filter.Filter) (int64, error) {
	where, args, err := compile(collection, f)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+collection+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	return res.RowsAffected()
}

// QueryTasks returns all tasks matching f in storage order.
func (s *Store) QueryTasks(ctx context.Context, f filter.Filter) ([]models.Task, error) {
	where, args, err := compile(models.CollectionTask, f)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM task`+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// QueryTodos returns all todos matching f in storage order.
func (s *Store) QueryTodos(ctx context.Context, f filter.Filter) ([]models.Todo, error) {
	where, args, err := compile(models.CollectionTodo, f)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, attributes FROM todo`+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	todos := []models.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// ExpiringTasks returns NEW tasks for assignee due in the window. It runs
// through QueryTasks and therefore the assigned+status+due index.
func (s *Store) ExpiringTasks(ctx context.Context, assignee string, start time.Time, end *time.Time) ([]models.Task, error) {
	return s.QueryTasks(ctx, storage.ExpiringFilter(assignee, start, end))
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (models.Task, error) {
	var (
		t      models.Task
		status string
		due    int64
	)
	if err := row.Scan(&t.ID, &t.TodoID, &t.Creator, &t.Assigned, &status, &due, &t.Title, &t.Description); err != nil {
		return models.Task{}, err
	}
	t.Status = models.Status(status)
	t.Due = time.UnixMilli(due).UTC()
	return t, nil
}

func scanTodo(row scanner) (models.Todo, error) {
	var (
		t     models.Todo
		attrs string
	)
	if err := row.Scan(&t.ID, &t.Username, &attrs); err != nil {
		return models.Todo{}, err
	}
	if attrs != "" && attrs != "{}" {
		if err := json.Unmarshal([]byte(attrs), &t.Attributes); err != nil {
			return models.Todo{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return t, nil
}

func taskDocument(t models.Task) schema.Document {
	return schema.Document{
		models.FieldID:          t.ID,
		models.FieldTodoID:      t.TodoID,
		models.FieldCreator:     t.Creator,
		models.FieldAssigned:    t.Assigned,
		models.FieldStatus:      string(t.Status),
		models.FieldDue:         t.Due,
		models.FieldTitle:       t.Title,
		models.FieldDescription: t.Description,
	}
}

// taskFromDocument expects a document that already passed validation.
func taskFromDocument(doc schema.Document) models.Task {
	str := func(name string) string {
		v, _ := doc[name].(string)
		return v
	}
	due, _ := doc[models.FieldDue].(time.Time)
	return models.Task{
		ID:          str(models.FieldID),
		TodoID:      str(models.FieldTodoID),
		Creator:     str(models.FieldCreator),
		Assigned:    str(models.FieldAssigned),
		Status:      models.Status(str(models.FieldStatus)),
		Due:         due.UTC(),
		Title:       str(models.FieldTitle),
		Description: str(models.FieldDescription),
	}
}
