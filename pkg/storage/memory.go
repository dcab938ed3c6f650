package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/instantcocoa/periscope/pkg/query"
)

// MemoryEngine keeps rows in process. It evaluates queries with the same
// semantics the SQL engines render, and is used for development and tests.
type MemoryEngine struct {
	mu     sync.RWMutex
	tables map[string][]query.Row
}

var _ Backend = (*MemoryEngine)(nil)

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		tables: make(map[string][]query.Row),
	}
}

func (m *MemoryEngine) Insert(ctx context.Context, schema *query.Schema, rows []query.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copies := make([]query.Row, len(rows))
	for i, row := range rows {
		copies[i] = copyRow(row, nil)
	}
	if err := checkRows(schema, copies); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[schema.Table] = append(m.tables[schema.Table], copies...)
	return nil
}

func (m *MemoryEngine) Execute(ctx context.Context, q query.Query) ([]query.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var matched []query.Row
	for _, row := range m.tables[q.Schema.Table] {
		if q.Where.Match(row) {
			matched = append(matched, row)
		}
	}
	m.mu.RUnlock()

	if q.Count {
		return []query.Row{{query.CountColumn: int64(len(matched))}}, nil
	}

	if len(q.OrderBy) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compareAny(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	cols := q.Projection()
	if cols == nil {
		// Keys only.
		cols = []string{}
	}
	resultCols := cols
	for _, k := range q.Keys {
		resultCols = append(resultCols[:len(resultCols):len(resultCols)], k.As)
	}
	results := make([]query.Row, 0, len(matched))
	seen := make(map[string]bool)
	for _, row := range matched {
		projected := copyRow(row, cols)
		for _, k := range q.Keys {
			m, _ := row[k.Column].(map[string]string)
			projected[k.As] = m[k.Key]
		}
		if q.Distinct {
			key := distinctKey(projected, resultCols)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		results = append(results, projected)
	}

	if q.Offset > 0 {
		if q.Offset >= len(results) {
			return []query.Row{}, nil
		}
		results = results[q.Offset:]
	}
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	return results, nil
}

func (m *MemoryEngine) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of rows stored for a table.
func (m *MemoryEngine) Len(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table])
}

// copyRow copies the listed columns of row, or all of them when cols is nil.
// Map values are copied too, so callers never share state with the engine.
func copyRow(row query.Row, cols []string) query.Row {
	if cols == nil {
		cols = make([]string, 0, len(row))
		for k := range row {
			cols = append(cols, k)
		}
	}
	out := make(query.Row, len(cols))
	for _, c := range cols {
		v, ok := row[c]
		if !ok {
			continue
		}
		if mv, ok := v.(map[string]string); ok {
			cp := make(map[string]string, len(mv))
			for k, s := range mv {
				cp[k] = s
			}
			v = cp
		}
		out[c] = v
	}
	return out
}

func distinctKey(row query.Row, cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		fmt.Fprintf(&b, "%v\x00", row[c])
	}
	return b.String()
}

// compareAny orders normalized values. Missing values sort first.
func compareAny(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return cmp3(av < bv, av > bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return cmp3(av < bv, av > bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}
