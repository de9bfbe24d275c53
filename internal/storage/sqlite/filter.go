package sqlite

import (
	"fmt"
	"strings"

	"todotracker/internal/filter"
	"todotracker/internal/models"
)

var columns = map[string]map[string]string{
	models.CollectionTodo: {
		models.FieldID:       "id",
		models.FieldUsername: "username",
	},
	models.CollectionTask: {
		models.FieldID:          "id",
		models.FieldTodoID:      "todo_id",
		models.FieldCreator:     "creator",
		models.FieldAssigned:    "assigned",
		models.FieldStatus:      "status",
		models.FieldDue:         "due",
		models.FieldTitle:       "title",
		models.FieldDescription: "description",
	},
}

// compile translates f into a WHERE clause (with leading space) and its arguments.
// Times are compared as unix milliseconds, substrings with instr so matching stays case-sensitive.
func compile(collection string, f filter.Filter) (string, []any, error) {
	if err := f.Check(collection); err != nil {
		return "", nil, err
	}

	var (
		clauses []string
		args    []any
	)
	for _, p := range f.Predicates() {
		col, ok := columns[collection][p.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s.%s", filter.ErrUnknownField, collection, p.Field)
		}
		switch p.Op {
		case filter.OpEq:
			clauses = append(clauses, col+" = ?")
			args = append(args, p.Value)
		case filter.OpIn:
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(p.Values)), ", ")
			clauses = append(clauses, col+" IN ("+marks+")")
			for _, v := range p.Values {
				args = append(args, v)
			}
		case filter.OpRange:
			if p.From != nil {
				clauses = append(clauses, col+" >= ?")
				args = append(args, p.From.UnixMilli())
			}
			if p.To != nil {
				clauses = append(clauses, col+" <= ?")
				args = append(args, p.To.UnixMilli())
			}
		case filter.OpContains:
			clauses = append(clauses, "instr("+col+", ?) > 0")
			args = append(args, p.Value)
		default:
			return "", nil, fmt.Errorf("%w: unsupported operator %s", filter.ErrInvalidPredicate, p.Op)
		}
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
