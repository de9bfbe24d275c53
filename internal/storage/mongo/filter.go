package mongo

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"todotracker/internal/filter"
	"todotracker/internal/models"
)

func fieldName(field string) string {
	if field == models.FieldID {
		return "_id"
	}
	return field
}

// compile translates f into a query document. Predicates keep their order so
// the assigned+status+due prefix reaches the planner as written.
func compile(collection string, f filter.Filter) (bson.D, error) {
	if err := f.Check(collection); err != nil {
		return nil, err
	}

	out := bson.D{}
	seen := map[string]bool{}
	repeated := false
	for _, p := range f.Predicates() {
		name := fieldName(p.Field)
		var cond any
		switch p.Op {
		case filter.OpEq:
			cond = p.Value
		case filter.OpIn:
			values := bson.A{}
			for _, v := range p.Values {
				values = append(values, v)
			}
			cond = bson.D{{Key: "$in", Value: values}}
		case filter.OpRange:
			r := bson.D{}
			if p.From != nil {
				r = append(r, bson.E{Key: "$gte", Value: *p.From})
			}
			if p.To != nil {
				r = append(r, bson.E{Key: "$lte", Value: *p.To})
			}
			if len(r) == 0 {
				r = append(r, bson.E{Key: "$exists", Value: true})
			}
			cond = r
		case filter.OpContains:
			cond = bson.D{{Key: "$regex", Value: regexp.QuoteMeta(p.Value)}}
		default:
			return nil, fmt.Errorf("%w: unsupported operator %s", filter.ErrInvalidPredicate, p.Op)
		}
		if seen[name] {
			repeated = true
		}
		seen[name] = true
		out = append(out, bson.E{Key: name, Value: cond})
	}

	if !repeated {
		return out, nil
	}
	and := bson.A{}
	for _, e := range out {
		and = append(and, bson.D{e})
	}
	return bson.D{{Key: "$and", Value: and}}, nil
}
