// Package schema holds the structural validators applied to documents before
// they are written. Validation is strict: a document failing its schema is never stored.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"todotracker/internal/models"
	"todotracker/internal/storage"
)

// Document is a record in its stored shape, keyed by field name.
type Document map[string]any

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

// Definition returns the JSON schema enforced for the named collection.
func Definition(collection string) map[string]any {
	str := map[string]any{"type": "string", "description": "must be a string and is required"}
	nonEmpty := map[string]any{"type": "string", "minLength": 1, "description": "must be a non-empty string and is required"}

	switch collection {
	case models.CollectionTodo:
		return map[string]any{
			"$schema":  "http://json-schema.org/draft-07/schema#",
			"type":     "object",
			"required": []string{models.FieldID, models.FieldUsername},
			"properties": map[string]any{
				models.FieldID:       nonEmpty,
				models.FieldUsername: nonEmpty,
				"attributes": map[string]any{
					"type":          "object",
					"propertyNames": map[string]any{"pattern": models.AttributeKeyPattern},
				},
			},
		}
	case models.CollectionTask:
		statuses := make([]string, 0, 4)
		for _, s := range models.Statuses() {
			statuses = append(statuses, string(s))
		}
		return map[string]any{
			"$schema": "http://json-schema.org/draft-07/schema#",
			"type":    "object",
			"required": []string{
				models.FieldID,
				models.FieldCreator,
				models.FieldTodoID,
				models.FieldTitle,
				models.FieldDescription,
				models.FieldStatus,
				models.FieldDue,
			},
			"properties": map[string]any{
				models.FieldID:          nonEmpty,
				models.FieldCreator:     str,
				models.FieldTodoID:      str,
				models.FieldAssigned:    str,
				models.FieldTitle:       str,
				models.FieldDescription: str,
				models.FieldDue: map[string]any{
					"type":        "string",
					"format":      "date-time",
					"description": "must be a date and is required",
				},
				models.FieldStatus: map[string]any{
					"enum":        statuses,
					"description": fmt.Sprintf("must be one of %s and is required", strings.Join(statuses, ",")),
				},
			},
		}
	}
	return nil
}

func compile() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft7
		compiler.AssertFormat = true

		out := map[string]*jsonschema.Schema{}
		for _, collection := range []string{models.CollectionTodo, models.CollectionTask} {
			raw, err := json.Marshal(Definition(collection))
			if err != nil {
				compileErr = fmt.Errorf("marshal %s schema: %w", collection, err)
				return
			}
			url := collection + ".schema.json"
			if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
				compileErr = fmt.Errorf("add %s schema: %w", collection, err)
				return
			}
			s, err := compiler.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", collection, err)
				return
			}
			out[collection] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// Validate checks doc against the collection validator and returns a
// *storage.ValidationError naming the first rejected top-level field.
func Validate(collection string, doc Document) error {
	schemas, err := compile()
	if err != nil {
		return err
	}
	s, ok := schemas[collection]
	if !ok {
		return fmt.Errorf("no validator for collection %q", collection)
	}

	if err := s.Validate(jsonValue(doc)); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		field, reason := firstCause(ve)
		return &storage.ValidationError{Collection: collection, Field: field, Reason: reason}
	}
	return nil
}

func firstCause(err *jsonschema.ValidationError) (string, string) {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	field := strings.SplitN(strings.TrimPrefix(err.InstanceLocation, "/"), "/", 2)[0]
	if field == "" && strings.HasPrefix(err.Message, "missing properties: ") {
		missing := strings.TrimPrefix(err.Message, "missing properties: ")
		field = strings.Trim(strings.SplitN(missing, ",", 2)[0], "' ")
	}
	return field, err.Message
}

// jsonValue converts the document into the shapes produced by encoding/json.
func jsonValue(v any) any {
	switch val := v.(type) {
	case Document:
		return jsonValue(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonValue(item)
		}
		return out
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case models.Status:
		return string(val)
	case string, bool, nil, float64, json.Number:
		return val
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Sprint(val)
		}
		return out
	}
}
