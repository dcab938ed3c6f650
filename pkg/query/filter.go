package query

import (
	"strings"
	"time"
)

// Condition is one caller-supplied predicate. Key selects an entry of a map
// column and must be empty for plain columns.
type Condition struct {
	Column string
	Key    string
	Op     Op
	Value  Value
}

// Window is a half-open time range [Start, End). A zero bound is unbounded.
type Window struct {
	Start time.Time
	End   time.Time
}

// Last returns the window covering the d before now.
func Last(d time.Duration, now time.Time) Window {
	return Window{Start: now.Add(-d), End: now}
}

// IsZero reports whether the window is unbounded on both sides.
func (w Window) IsZero() bool { return w.Start.IsZero() && w.End.IsZero() }

// Validate rejects inverted windows.
func (w Window) Validate() error {
	if !w.Start.IsZero() && !w.End.IsZero() && !w.Start.Before(w.End) {
		return invalidf("window start %s is not before end %s",
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Expr returns the window as a predicate over column.
func (w Window) Expr(column string) Expr {
	var parts []Expr
	if !w.Start.IsZero() {
		parts = append(parts, Gte(Col(column), Time(w.Start)))
	}
	if !w.End.IsZero() {
		parts = append(parts, Lt(Col(column), Time(w.End)))
	}
	return And(parts...)
}

// Filter is the typed filter set of a request.
type Filter struct {
	Conditions []Condition
	// Exprs are extra predicates ANDed with the conditions.
	Exprs  []Expr
	Search string
	Window Window
}

// Build turns f into a single conjunctive expression over s. An empty filter
// yields the tautology. Every column, key, and literal is validated before
// anything is returned.
func Build(s *Schema, f Filter) (Expr, error) {
	if err := f.Window.Validate(); err != nil {
		return Expr{}, err
	}

	parts := make([]Expr, 0, len(f.Conditions)+len(f.Exprs)+2)
	if !f.Window.IsZero() {
		if s.TimeColumn == "" {
			return Expr{}, invalidf("%s has no time column", s.Table)
		}
		parts = append(parts, f.Window.Expr(s.TimeColumn))
	}

	for _, c := range f.Conditions {
		left := Col(c.Column)
		if c.Key != "" {
			left = MapKey(c.Column, c.Key)
		}
		parts = append(parts, Compare(left, c.Op, c.Value))
	}
	parts = append(parts, f.Exprs...)

	if search := strings.TrimSpace(f.Search); search != "" {
		parts = append(parts, SearchExpr(s, search))
	}

	e := And(parts...)
	if err := e.Validate(s); err != nil {
		return Expr{}, err
	}
	return e, nil
}

// SearchExpr matches needle case-insensitively against every searchable
// column of s.
func SearchExpr(s *Schema, needle string) Expr {
	alts := make([]Expr, 0, len(s.Searchable))
	for _, name := range s.Searchable {
		t, ok := s.Lookup(name)
		if !ok {
			continue
		}
		left := Col(name)
		if t == TypeMap {
			left = MapText(name)
		}
		alts = append(alts, Contains(left, needle))
	}
	return Or(alts...)
}

// Order is one sort key.
type Order struct {
	Column string
	Desc   bool
}

// ParseDirection parses "asc" or "desc" case-insensitively and reports
// whether the direction is descending.
func ParseDirection(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, invalidf("sort order %q must be asc or desc", s)
	}
}

// ParseOrder validates a caller-supplied sort column and direction against
// the schema. Empty inputs fall back to def.
func ParseOrder(s *Schema, column, direction string, def Order) (Order, error) {
	o := def
	if column != "" {
		if !s.CanSort(column) {
			return Order{}, invalidf("cannot sort %s by %q", s.Table, column)
		}
		o.Column = column
	}
	if direction != "" {
		desc, err := ParseDirection(direction)
		if err != nil {
			return Order{}, err
		}
		o.Desc = desc
	}
	return o, nil
}
