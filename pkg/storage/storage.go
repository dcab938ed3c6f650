// Package storage executes queries built with package query against a
// backing store: in memory, PostgreSQL, or ClickHouse over HTTP.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/instantcocoa/periscope/pkg/query"
)

// ErrUnavailable is returned when the backing store cannot be reached or
// fails to answer. A timed-out request context is reported as
// context.DeadlineExceeded, which callers treat the same way.
var ErrUnavailable = errors.New("storage unavailable")

// Engine runs read queries. Rows come back keyed by logical column name with
// values normalized per the query schema.
type Engine interface {
	Execute(ctx context.Context, q query.Query) ([]query.Row, error)
}

// Writer inserts rows into a logical table.
type Writer interface {
	Insert(ctx context.Context, schema *query.Schema, rows []query.Row) error
}

// Backend is an engine that also accepts writes and health checks.
type Backend interface {
	Engine
	Writer
	Ping(ctx context.Context) error
}

// unavailable wraps a transport failure. Context errors pass through
// unchanged so callers can tell cancellation from outages.
func unavailable(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// normalizeRow converts raw driver values of a result row of q in place.
func normalizeRow(q query.Query, row query.Row) error {
	for name, raw := range row {
		t, ok := q.ResultType(name)
		if !ok {
			continue
		}
		v, err := Normalize(t, raw)
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		row[name] = v
	}
	return nil
}

// checkRows validates rows for insertion against the schema.
func checkRows(s *query.Schema, rows []query.Row) error {
	for i, row := range rows {
		for name, raw := range row {
			t, ok := s.Lookup(name)
			if !ok {
				return fmt.Errorf("%w: row %d: unknown column %q for %s", query.ErrInvalidInput, i, name, s.Table)
			}
			v, err := Normalize(t, raw)
			if err != nil {
				return fmt.Errorf("%w: row %d: column %s: %v", query.ErrInvalidInput, i, name, err)
			}
			row[name] = v
		}
	}
	return nil
}
