package filter

import (
	"errors"
	"testing"
	"time"

	"todotracker/internal/models"
)

func TestTasksRejectsUnknownField(t *testing.T) {
	_, err := Tasks(Eq("owner", "bob"))
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}

	_, err = Todos(Eq(models.FieldStatus, "NEW"))
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("status is not a todo field, got %v", err)
	}
}

func TestTasksRejectsMismatchedOperators(t *testing.T) {
	now := time.Now()
	bad := []Predicate{
		Between(models.FieldTitle, &now, nil),
		Eq(models.FieldDue, "2024-01-01"),
		Contains(models.FieldDue, "2024"),
		In(models.FieldStatus),
		{Field: models.FieldTitle, Op: Op(42)},
	}
	for _, p := range bad {
		if _, err := Tasks(p); !errors.Is(err, ErrInvalidPredicate) {
			t.Fatalf("predicate %+v: expected ErrInvalidPredicate, got %v", p, err)
		}
	}
}

func TestCheckCollection(t *testing.T) {
	f := TodoByID("x")
	if err := f.Check(models.CollectionTodo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Check(models.CollectionTask); !errors.Is(err, ErrCollection) {
		t.Fatalf("expected ErrCollection, got %v", err)
	}
	var zero Filter
	if err := zero.Check(models.CollectionTask); !errors.Is(err, ErrCollection) {
		t.Fatalf("zero filter must be rejected, got %v", err)
	}
}

func TestExpiringFollowsIndexOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	preds := Expiring("alice", start, nil).Predicates()
	if len(preds) != 3 {
		t.Fatalf("expected 3 predicates, got %d", len(preds))
	}
	want := []string{models.FieldAssigned, models.FieldStatus, models.FieldDue}
	for i, p := range preds {
		if p.Field != want[i] {
			t.Fatalf("predicate %d on %s, want %s", i, p.Field, want[i])
		}
	}
	if preds[1].Value != "NEW" {
		t.Fatalf("status must be fixed to NEW, got %q", preds[1].Value)
	}
	if preds[2].To != nil || !preds[2].From.Equal(start) {
		t.Fatalf("unexpected window: %+v", preds[2])
	}
}

func TestKeyIsCanonical(t *testing.T) {
	a, err := Tasks(In(models.FieldStatus, "NEW", "DOING"), Eq(models.FieldAssigned, "bob"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Tasks(Eq(models.FieldAssigned, "bob"), In(models.FieldStatus, "DOING", "NEW"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ:\n%s\n%s", a.Key(), b.Key())
	}
	c, _ := Tasks(Eq(models.FieldAssigned, "carol"))
	if a.Key() == c.Key() {
		t.Fatal("different filters must not share a key")
	}
}

func TestBetweenNormalizesToUTC(t *testing.T) {
	local := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	p := Between(models.FieldDue, &local, nil)
	if p.From.Location() != time.UTC || !p.From.Equal(local) {
		t.Fatalf("expected UTC bound, got %v", p.From)
	}
}
