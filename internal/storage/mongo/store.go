// Package mongo implements storage.Store on MongoDB, relying on server-side
// $jsonSchema validators and field-level $set upserts.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"todotracker/internal/filter"
	"todotracker/internal/models"
	"todotracker/internal/storage"
)

// codeDocumentValidationFailure is returned by the server when a write breaks a validator.
const codeDocumentValidationFailure = 121

// Store is a MongoDB backed storage.Store. One client is shared by all callers.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

type taskDoc struct {
	ID          string    `bson:"_id"`
	TodoID      string    `bson:"todoId"`
	Creator     string    `bson:"creator"`
	Assigned    string    `bson:"assigned,omitempty"`
	Status      string    `bson:"status"`
	Due         time.Time `bson:"due"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
}

func (d taskDoc) model() models.Task {
	return models.Task{
		ID:          d.ID,
		TodoID:      d.TodoID,
		Creator:     d.Creator,
		Assigned:    d.Assigned,
		Status:      models.Status(d.Status),
		Due:         d.Due.UTC(),
		Title:       d.Title,
		Description: d.Description,
	}
}

type todoDoc struct {
	ID         string         `bson:"_id"`
	Username   string         `bson:"username"`
	Attributes map[string]any `bson:"attributes,omitempty"`
}

// Open connects to uri, selects database and provisions collections, validators and indexes.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	if uri == "" || database == "" {
		return nil, fmt.Errorf("mongo uri and database are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("connected to mongo", slog.String("database", database))

	s := &Store{client: client, db: client.Database(database), logger: logger}
	if err := s.provision(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Close disconnects the shared client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

// UpsertTask sets the supplied fields on the task, inserting it when absent.
func (s *Store) UpsertTask(ctx context.Context, update models.TaskUpdate) (string, error) {
	id := update.ID
	if id == "" {
		id = newID()
	}
	set := bson.M{"_id": id}
	for k, v := range update.Fields() {
		set[k] = v
	}
	if err := s.upsert(ctx, models.CollectionTask, id, set); err != nil {
		return "", err
	}
	return id, nil
}

// UpsertTodo sets the supplied fields on the todo. Attributes are set key by key,
// so keys that would read as a path or an operator are rejected.
func (s *Store) UpsertTodo(ctx context.Context, update models.TodoUpdate) (string, error) {
	for k := range update.Attributes {
		if !models.ValidAttributeKey(k) {
			return "", &storage.ValidationError{
				Collection: models.CollectionTodo,
				Field:      "attributes",
				Reason:     fmt.Sprintf("attribute key %q must not start with '$' or contain '.'", k),
			}
		}
	}
	id := update.ID
	if id == "" {
		id = newID()
	}
	set := bson.M{"_id": id}
	for k, v := range update.Fields() {
		set[k] = v
	}
	for k, v := range update.Attributes {
		set["attributes."+k] = v
	}
	if err := s.upsert(ctx, models.CollectionTodo, id, set); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) upsert(ctx context.Context, collection, id string, set bson.M) error {
	_, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return translate(collection, err)
	}
	return nil
}

// DeleteTasks removes every task matching f.
func (s *Store) DeleteTasks(ctx context.Context, f filter.Filter) (int64, error) {
	return s.delete(ctx, models.CollectionTask, f)
}

// DeleteTodos removes every todo matching f. Their tasks are left in place.
func (s *Store) DeleteTodos(ctx context.Context, f filter.Filter) (int64, error) {
	return s.delete(ctx, models.CollectionTodo, f)
}

func (s *Store) delete(ctx context.Context, collection string, f filter.Filter) (int64, error) {
	q, err := compile(collection, f)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Collection(collection).DeleteMany(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

// QueryTasks returns every task matching f.
func (s *Store) QueryTasks(ctx context.Context, f filter.Filter) ([]models.Task, error) {
	q, err := compile(models.CollectionTask, f)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(models.CollectionTask).Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	var docs []taskDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	tasks := make([]models.Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, d.model())
	}
	return tasks, nil
}

// QueryTodos returns every todo matching f.
func (s *Store) QueryTodos(ctx context.Context, f filter.Filter) ([]models.Todo, error) {
	q, err := compile(models.CollectionTodo, f)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(models.CollectionTodo).Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	var docs []todoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode todos: %w", err)
	}
	todos := make([]models.Todo, 0, len(docs))
	for _, d := range docs {
		todos = append(todos, models.Todo{ID: d.ID, Username: d.Username, Attributes: d.Attributes})
	}
	return todos, nil
}

// ExpiringTasks returns NEW tasks for assignee due in the window.
func (s *Store) ExpiringTasks(ctx context.Context, assignee string, start time.Time, end *time.Time) ([]models.Task, error) {
	return s.QueryTasks(ctx, storage.ExpiringFilter(assignee, start, end))
}

// translate maps validator rejections to *storage.ValidationError and leaves
// every other error untouched.
func translate(collection string, err error) error {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return err
	}
	for _, e := range we.WriteErrors {
		if e.Code == codeDocumentValidationFailure {
			return &storage.ValidationError{
				Collection: collection,
				Field:      rejectedField(e.Details),
				Reason:     e.Message,
			}
		}
	}
	return err
}

type validationInfo struct {
	Details struct {
		Rules []struct {
			Missing []string `bson:"missingProperties"`
			Props   []struct {
				Name string `bson:"propertyName"`
			} `bson:"propertiesNotSatisfied"`
		} `bson:"schemaRulesNotSatisfied"`
	} `bson:"details"`
}

// rejectedField digs the first offending property out of the server's errInfo.
func rejectedField(details bson.Raw) string {
	if len(details) == 0 {
		return ""
	}
	var info validationInfo
	if err := bson.Unmarshal(details, &info); err != nil {
		return ""
	}
	for _, rule := range info.Details.Rules {
		if len(rule.Missing) > 0 {
			return rule.Missing[0]
		}
		if len(rule.Props) > 0 {
			return rule.Props[0].Name
		}
	}
	return ""
}
