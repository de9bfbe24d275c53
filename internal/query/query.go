// Package query turns loosely typed request parameters into validated store filters.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"todotracker/internal/filter"
	"todotracker/internal/models"
)

// DayLayout is the accepted calendar day format.
const DayLayout = "2006-01-02"

// DefaultExpiringDays is the look-ahead window used when no end day is supplied.
const DefaultExpiringDays = 7

// InvalidDateMessage is shown to callers who supply an unparsable day.
const InvalidDateMessage = "Please enter a valid ISO date (yyyy-mm-dd)"

// MalformedInputError reports caller input that cannot be turned into a filter.
type MalformedInputError struct {
	Param   string
	Value   string
	Message string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("%s: %s=%q", e.Message, e.Param, e.Value)
}

// Params are the raw task search parameters. Empty strings impose no constraint.
type Params struct {
	Assigned    string
	Creator     string
	TodoID      string
	Status      string
	Title       string
	Description string
	StartDay    string
	EndDay      string
}

// Build converts params into a task filter. identity is used when no assignee is given.
func Build(p Params, identity string) (filter.Filter, error) {
	assigned := p.Assigned
	if assigned == "" {
		assigned = identity
	}
	preds := []filter.Predicate{filter.Eq(models.FieldAssigned, assigned)}

	statuses, err := ParseStatuses(p.Status)
	if err != nil {
		return filter.Filter{}, err
	}
	preds = append(preds, filter.In(models.FieldStatus, statuses...))

	start, err := parseDay("startDay", p.StartDay)
	if err != nil {
		return filter.Filter{}, err
	}
	end, err := parseDay("endDay", p.EndDay)
	if err != nil {
		return filter.Filter{}, err
	}
	if start != nil || end != nil {
		preds = append(preds, filter.Between(models.FieldDue, start, end))
	}

	if p.Creator != "" {
		preds = append(preds, filter.Eq(models.FieldCreator, p.Creator))
	}
	if p.TodoID != "" {
		preds = append(preds, filter.Eq(models.FieldTodoID, p.TodoID))
	}
	if p.Title != "" {
		preds = append(preds, filter.Contains(models.FieldTitle, p.Title))
	}
	if p.Description != "" {
		preds = append(preds, filter.Contains(models.FieldDescription, p.Description))
	}
	return filter.Tasks(preds...)
}

// ParseStatuses splits a comma separated status list. Blank input yields every status.
func ParseStatuses(raw string) ([]string, error) {
	seen := map[models.Status]bool{}
	var out []string
	for _, token := range strings.Split(raw, ",") {
		if strings.TrimSpace(token) == "" {
			continue
		}
		s, err := models.ParseStatus(token)
		if err != nil {
			return nil, &MalformedInputError{
				Param:   "status",
				Value:   token,
				Message: "status must be one of NEW, DOING, REVIEW, DONE",
			}
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, string(s))
		}
	}
	if len(out) == 0 {
		for _, s := range models.Statuses() {
			out = append(out, string(s))
		}
	}
	return out, nil
}

// ExpiringParams are the raw parameters of the expiring tasks lookup.
type ExpiringParams struct {
	Assignee string
	StartDay string
	EndDay   string
	Days     string
}

// Window is a resolved expiring tasks lookup.
type Window struct {
	Assignee string
	Start    time.Time
	End      time.Time
}

// ExpiringWindow resolves the expiring lookup window relative to now. Start
// defaults to now, end to the end of today plus Days (default seven).
func ExpiringWindow(p ExpiringParams, identity string, now time.Time) (Window, error) {
	w := Window{Assignee: p.Assignee, Start: now}
	if w.Assignee == "" {
		w.Assignee = identity
	}

	start, err := parseDay("startDay", p.StartDay)
	if err != nil {
		return Window{}, err
	}
	if start != nil {
		w.Start = *start
	}

	end, err := parseDay("endDay", p.EndDay)
	if err != nil {
		return Window{}, err
	}
	if end != nil {
		w.End = *end
		return w, nil
	}

	days := DefaultExpiringDays
	if p.Days != "" {
		n, err := strconv.Atoi(p.Days)
		if err != nil || n < 0 {
			return Window{}, &MalformedInputError{Param: "days", Value: p.Days, Message: "days must be a non-negative integer"}
		}
		days = n
	}
	w.End = EndOfDay(now).AddDate(0, 0, days)
	return w, nil
}

// EndOfDay returns the last representable millisecond of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// ParseDay parses a yyyy-mm-dd string as midnight UTC.
func ParseDay(param, raw string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, &MalformedInputError{Param: param, Value: raw, Message: InvalidDateMessage}
	}
	return t, nil
}

func parseDay(param, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := ParseDay(param, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
