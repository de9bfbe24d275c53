// Package filter describes store-independent query filters. A Filter is a
// conjunction of typed predicates validated against the fields of one collection,
// so backends only ever see shapes they know how to translate.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"todotracker/internal/models"
)

var (
	// ErrUnknownField is returned when a predicate names a field the collection does not have.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidPredicate is returned for predicates whose operator does not fit the field.
	ErrInvalidPredicate = errors.New("invalid predicate")
	// ErrCollection is returned when a filter is executed against the wrong collection.
	ErrCollection = errors.New("filter built for another collection")
)

// Op identifies the kind of predicate.
type Op int

const (
	// OpEq matches values equal to Value.
	OpEq Op = iota
	// OpIn matches values contained in Values.
	OpIn
	// OpRange matches times within [From, To]; a nil bound is open.
	OpRange
	// OpContains matches string values containing Value, case-sensitively.
	OpContains
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpIn:
		return "in"
	case OpRange:
		return "range"
	case OpContains:
		return "contains"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Predicate constrains a single field.
type Predicate struct {
	Field  string
	Op     Op
	Value  string
	Values []string
	From   *time.Time
	To     *time.Time
}

// Eq builds an equality predicate.
func Eq(field, value string) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: value}
}

// In builds a set-membership predicate.
func In(field string, values ...string) Predicate {
	return Predicate{Field: field, Op: OpIn, Values: values}
}

// Between builds a time range predicate. Either bound may be nil.
func Between(field string, from, to *time.Time) Predicate {
	return Predicate{Field: field, Op: OpRange, From: utc(from), To: utc(to)}
}

// Contains builds a case-sensitive substring predicate.
func Contains(field, substr string) Predicate {
	return Predicate{Field: field, Op: OpContains, Value: substr}
}

// Filter is a validated conjunction of predicates over one collection.
// The zero value matches nothing in particular and is rejected by stores.
type Filter struct {
	collection string
	preds      []Predicate
}

// Tasks builds a filter over the task collection.
func Tasks(preds ...Predicate) (Filter, error) {
	return build(models.CollectionTask, preds)
}

// Todos builds a filter over the todo collection.
func Todos(preds ...Predicate) (Filter, error) {
	return build(models.CollectionTodo, preds)
}

// TaskByID matches a single task.
func TaskByID(id string) Filter {
	return Filter{collection: models.CollectionTask, preds: []Predicate{Eq(models.FieldID, id)}}
}

// TodoByID matches a single todo.
func TodoByID(id string) Filter {
	return Filter{collection: models.CollectionTodo, preds: []Predicate{Eq(models.FieldID, id)}}
}

// TasksOfTodo matches every task belonging to the given todo.
func TasksOfTodo(todoID string) Filter {
	return Filter{collection: models.CollectionTask, preds: []Predicate{Eq(models.FieldTodoID, todoID)}}
}

// Expiring matches NEW tasks assigned to assignee that are due within [start, end].
// A nil end leaves the window open. The predicates follow the order of the
// assigned+status+due index.
func Expiring(assignee string, start time.Time, end *time.Time) Filter {
	return Filter{
		collection: models.CollectionTask,
		preds: []Predicate{
			Eq(models.FieldAssigned, assignee),
			Eq(models.FieldStatus, string(models.StatusNew)),
			Between(models.FieldDue, &start, end),
		},
	}
}

// Collection returns the collection the filter was built for.
func (f Filter) Collection() string {
	return f.collection
}

// Predicates returns a copy of the filter predicates.
func (f Filter) Predicates() []Predicate {
	out := make([]Predicate, len(f.preds))
	copy(out, f.preds)
	return out
}

// Check returns ErrCollection unless f targets the named collection.
func (f Filter) Check(collection string) error {
	if f.collection != collection {
		return fmt.Errorf("%w: want %s, got %q", ErrCollection, collection, f.collection)
	}
	return nil
}

// Key renders a canonical description of the filter, stable for equal filters.
func (f Filter) Key() string {
	parts := make([]string, 0, len(f.preds))
	for _, p := range f.preds {
		parts = append(parts, p.key())
	}
	sort.Strings(parts)
	return f.collection + "|" + strings.Join(parts, "&")
}

func (f Filter) String() string {
	return f.Key()
}

func (p Predicate) key() string {
	switch p.Op {
	case OpIn:
		vals := append([]string(nil), p.Values...)
		sort.Strings(vals)
		return fmt.Sprintf("%s:in:%q", p.Field, vals)
	case OpRange:
		return fmt.Sprintf("%s:range:%s:%s", p.Field, bound(p.From), bound(p.To))
	default:
		return fmt.Sprintf("%s:%s:%q", p.Field, p.Op, p.Value)
	}
}

func bound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func build(collection string, preds []Predicate) (Filter, error) {
	fields := models.TaskFields
	if collection == models.CollectionTodo {
		fields = models.TodoFields
	}
	for _, p := range preds {
		if !contains(fields, p.Field) {
			return Filter{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, collection, p.Field)
		}
		if err := validate(p); err != nil {
			return Filter{}, err
		}
	}
	return Filter{collection: collection, preds: append([]Predicate(nil), preds...)}, nil
}

func validate(p Predicate) error {
	isTime := p.Field == models.FieldDue
	switch p.Op {
	case OpEq, OpContains:
		if isTime {
			return fmt.Errorf("%w: %s on time field %s", ErrInvalidPredicate, p.Op, p.Field)
		}
	case OpIn:
		if isTime {
			return fmt.Errorf("%w: %s on time field %s", ErrInvalidPredicate, p.Op, p.Field)
		}
		if len(p.Values) == 0 {
			return fmt.Errorf("%w: empty set for %s", ErrInvalidPredicate, p.Field)
		}
	case OpRange:
		if !isTime {
			return fmt.Errorf("%w: range on non-time field %s", ErrInvalidPredicate, p.Field)
		}
	default:
		return fmt.Errorf("%w: unsupported operator %s", ErrInvalidPredicate, p.Op)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
