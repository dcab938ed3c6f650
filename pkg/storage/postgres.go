package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/instantcocoa/periscope/pkg/query"
)

// insertBatchSize bounds the rows of one multi-row INSERT, keeping the
// parameter count well under the PostgreSQL limit of 65535.
const insertBatchSize = 500

// Querier is the subset of *sql.DB the Postgres engine uses.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// PostgresEngine runs queries on PostgreSQL through database/sql and
// lib/pq. Map columns are stored as jsonb.
type PostgresEngine struct {
	db     Querier
	logger *slog.Logger
}

var _ Backend = (*PostgresEngine)(nil)

// NewPostgresEngine creates an engine over an open database handle.
func NewPostgresEngine(db Querier, logger *slog.Logger) *PostgresEngine {
	return &PostgresEngine{
		db:     db,
		logger: logger.With("component", "postgres_engine"),
	}
}

func (e *PostgresEngine) Execute(ctx context.Context, q query.Query) ([]query.Row, error) {
	stmt, err := query.Render(query.Postgres{}, q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, stmt.SQL, stmt.ArgValues()...)
	if err != nil {
		return nil, unavailable(ctx, "query "+q.Schema.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, unavailable(ctx, "read columns", err)
	}

	var results []query.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", q.Schema.Table, err)
		}

		row := make(query.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		if err := normalizeRow(q, row); err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", q.Schema.Table, err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(ctx, "iterate "+q.Schema.Table, err)
	}

	e.logger.DebugContext(ctx, "query executed",
		"table", q.Schema.Table,
		"rows", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

func (e *PostgresEngine) Insert(ctx context.Context, schema *query.Schema, rows []query.Row) error {
	if err := checkRows(schema, rows); err != nil {
		return err
	}

	cols := schema.ColumnNames()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		stmt, args, err := insertStatement(schema, cols, rows[start:end])
		if err != nil {
			return err
		}
		if _, err := e.db.ExecContext(ctx, stmt, args...); err != nil {
			return unavailable(ctx, "insert "+schema.Table, err)
		}
	}
	return nil
}

func insertStatement(schema *query.Schema, cols []string, rows []query.Row) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", schema.Table, strings.Join(cols, ", "))

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			arg, err := postgresArg(schema, c, row[c])
			if err != nil {
				return "", nil, err
			}
			args = append(args, arg)
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}
	return b.String(), args, nil
}

func postgresArg(schema *query.Schema, col string, v any) (any, error) {
	t, _ := schema.Lookup(col)
	if v == nil {
		v, _ = Normalize(t, nil)
	}
	if t == query.TypeMap {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", col, err)
		}
		return string(b), nil
	}
	return v, nil
}

func (e *PostgresEngine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return unavailable(ctx, "ping", err)
	}
	return nil
}
