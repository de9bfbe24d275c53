package models

import (
	"fmt"
	"strings"
)

// Collection names.
const (
	CollectionTodo = "todo"
	CollectionTask = "task"
)

// Field names shared by validation, storage and query construction.
const (
	FieldID          = "id"
	FieldUsername    = "username"
	FieldTodoID      = "todoId"
	FieldCreator     = "creator"
	FieldAssigned    = "assigned"
	FieldStatus      = "status"
	FieldDue         = "due"
	FieldTitle       = "title"
	FieldDescription = "description"
)

// AttributeKeyPattern matches the todo attribute keys every backend stores
// literally. Keys may not start with '$' or contain '.'.
const AttributeKeyPattern = `^[^$.][^.]*$`

// ValidAttributeKey reports whether k matches AttributeKeyPattern.
func ValidAttributeKey(k string) bool {
	return k != "" && !strings.HasPrefix(k, "$") && !strings.Contains(k, ".")
}

// TodoFields lists the queryable todo fields.
var TodoFields = []string{FieldID, FieldUsername}

// TaskFields lists the queryable task fields.
var TaskFields = []string{
	FieldID,
	FieldTodoID,
	FieldCreator,
	FieldAssigned,
	FieldStatus,
	FieldDue,
	FieldTitle,
	FieldDescription,
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNew    Status = "NEW"
	StatusDoing  Status = "DOING"
	StatusReview Status = "REVIEW"
	StatusDone   Status = "DONE"
)

// Statuses returns every valid status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusNew, StatusDoing, StatusReview, StatusDone}
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusDoing, StatusReview, StatusDone:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus normalizes external input into a Status. Matching is case-insensitive
// and ignores surrounding whitespace.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}
