package models

import "time"

// Todo is a named container owned by a single identity.
type Todo struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Task represents a unit of work that belongs to a todo. Due is kept in UTC at
// millisecond precision.
type Task struct {
	ID          string    `json:"id"`
	TodoID      string    `json:"todoId"`
	Creator     string    `json:"creator"`
	Assigned    string    `json:"assigned"`
	Status      Status    `json:"status"`
	Due         time.Time `json:"due"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// TodoUpdate carries the fields of a todo write. Nil fields are left untouched.
type TodoUpdate struct {
	ID         string
	Username   *string
	Attributes map[string]any
}

// Fields returns the supplied fields keyed by their stored names.
func (u TodoUpdate) Fields() map[string]any {
	fields := map[string]any{}
	if u.Username != nil {
		fields[FieldUsername] = *u.Username
	}
	return fields
}

// TaskUpdate carries the fields of a task write. Nil fields are left untouched.
type TaskUpdate struct {
	ID          string
	TodoID      *string
	Creator     *string
	Assigned    *string
	Status      *Status
	Due         *time.Time
	Title       *string
	Description *string
}

// Fields returns the supplied fields keyed by their stored names.
// The id is not part of the result and due is truncated to the millisecond.
func (u TaskUpdate) Fields() map[string]any {
	fields := map[string]any{}
	setString := func(name string, v *string) {
		if v != nil {
			fields[name] = *v
		}
	}
	setString(FieldTodoID, u.TodoID)
	setString(FieldCreator, u.Creator)
	setString(FieldAssigned, u.Assigned)
	setString(FieldTitle, u.Title)
	setString(FieldDescription, u.Description)
	if u.Status != nil {
		fields[FieldStatus] = string(*u.Status)
	}
	if u.Due != nil {
		fields[FieldDue] = u.Due.UTC().Truncate(time.Millisecond)
	}
	return fields
}

// Ptr returns a pointer to v. Handy when building updates.
func Ptr[T any](v T) *T {
	return &v
}
