package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"todotracker/internal/models"
)

// validator returns the $jsonSchema enforced on the named collection.
func validator(collection string) bson.M {
	str := func(msg string) bson.M {
		return bson.M{"bsonType": "string", "description": msg}
	}
	nonEmpty := bson.M{"bsonType": "string", "minLength": 1, "description": "must be a non-empty string and is required"}

	switch collection {
	case models.CollectionTodo:
		return bson.M{"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", models.FieldUsername},
			"properties": bson.M{
				"_id":                nonEmpty,
				models.FieldUsername: nonEmpty,
			},
		}}
	case models.CollectionTask:
		statuses := bson.A{}
		for _, s := range models.Statuses() {
			statuses = append(statuses, string(s))
		}
		return bson.M{"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{
				"_id",
				models.FieldCreator,
				models.FieldTodoID,
				models.FieldTitle,
				models.FieldDescription,
				models.FieldStatus,
				models.FieldDue,
			},
			"properties": bson.M{
				"_id":                   nonEmpty,
				models.FieldCreator:     str("must be a string and is required"),
				models.FieldTodoID:      str("must be a string and is required"),
				models.FieldTitle:       str("must be a string and is required"),
				models.FieldDescription: str("must be a string and is required"),
				models.FieldDue:         bson.M{"bsonType": "date", "description": "must be a date and is required"},
				models.FieldStatus:      bson.M{"enum": statuses, "description": "must be a valid status and is required"},
			},
		}}
	}
	return nil
}

// taskIndexes back the todo lookup, the expiring lookup and the creator lookup.
func taskIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: models.FieldTodoID, Value: 1}}},
		{Keys: bson.D{
			{Key: models.FieldAssigned, Value: 1},
			{Key: models.FieldStatus, Value: 1},
			{Key: models.FieldDue, Value: 1},
		}},
		{Keys: bson.D{{Key: models.FieldCreator, Value: 1}}},
	}
}

// provision creates missing collections, refreshes validators and ensures indexes.
// Every step is idempotent.
func (s *Store) provision(ctx context.Context) error {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	existing := make(map[string]bool, len(names))
	for _, name := range names {
		existing[name] = true
	}

	s.logger.Info("provisioning collections")
	for _, name := range []string{models.CollectionTodo, models.CollectionTask} {
		if existing[name] {
			continue
		}
		if err := s.db.CreateCollection(ctx, name); err != nil && !isNamespaceExists(err) {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}

	// Validators are refreshed on every start since collections may predate them.
	s.logger.Info("applying validators")
	for _, name := range []string{models.CollectionTodo, models.CollectionTask} {
		cmd := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator(name)},
			{Key: "validationLevel", Value: "strict"},
			{Key: "validationAction", Value: "error"},
		}
		if err := s.db.RunCommand(ctx, cmd).Err(); err != nil {
			return fmt.Errorf("apply %s validator: %w", name, err)
		}
	}

	s.logger.Info("creating indexes")
	if _, err := s.db.Collection(models.CollectionTask).Indexes().CreateMany(ctx, taskIndexes()); err != nil {
		return fmt.Errorf("create task indexes: %w", err)
	}
	s.logger.Info("store ready")
	return nil
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == 48
}
