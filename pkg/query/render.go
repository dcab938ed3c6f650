package query

import (
	"fmt"
	"strings"
)

// Dialect renders the backend-specific pieces of a statement.
type Dialect interface {
	// Table returns the quoted physical table name.
	Table(name string) string
	// Column returns the quoted physical column for a logical name.
	Column(name string) string
	// Placeholder returns the parameter reference for the n-th (1-based)
	// bound value.
	Placeholder(n int, v Value) string
	// MapKey renders an entry lookup on a map column.
	MapKey(column, keyPlaceholder string) string
	// MapNumber renders an entry lookup cast to a number, NULL when the
	// entry is not numeric.
	MapNumber(column, keyPlaceholder string) string
	// MapText renders the serialized text of a map column.
	MapText(column string) string
	// Contains renders a case-insensitive substring test.
	Contains(operand, placeholder string) string
	// ContainsNeedle returns the literal bound for a Contains pattern.
	ContainsNeedle(s string) string
	// CountExpr renders the row count aggregate.
	CountExpr() string
}

// Statement is rendered SQL plus its bound arguments in placeholder order.
type Statement struct {
	SQL  string
	Args []Value
}

// ArgValues returns the bound arguments as database/sql arguments.
func (s Statement) ArgValues() []any {
	out := make([]any, len(s.Args))
	for i, a := range s.Args {
		out[i] = a.Interface()
	}
	return out
}

// Render validates q and renders it for d.
func Render(d Dialect, q Query) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}

	p := &printer{d: d}
	var b strings.Builder

	b.WriteString("SELECT ")
	if q.Count {
		b.WriteString(d.CountExpr())
		b.WriteString(" AS ")
		b.WriteString(CountColumn)
	} else {
		if q.Distinct {
			b.WriteString("DISTINCT ")
		}
		for i, c := range q.Projection() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.selectColumn(c))
		}
		for i, k := range q.Keys {
			if i > 0 || len(q.Columns) > 0 {
				b.WriteString(", ")
			}
			ph, err := p.bind(String(k.Key))
			if err != nil {
				return Statement{}, err
			}
			b.WriteString(d.MapKey(d.Column(k.Column), ph))
			b.WriteString(" AS ")
			b.WriteString(k.As)
		}
	}

	b.WriteString(" FROM ")
	b.WriteString(d.Table(q.Schema.Table))

	if !q.Where.IsTrue() {
		where, err := p.expr(q.Where)
		if err != nil {
			return Statement{}, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if !q.Count {
		if len(q.OrderBy) > 0 {
			b.WriteString(" ORDER BY ")
			for i, o := range q.OrderBy {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(d.Column(o.Column))
				if o.Desc {
					b.WriteString(" DESC")
				} else {
					b.WriteString(" ASC")
				}
			}
		}
		if q.Limit > 0 {
			fmt.Fprintf(&b, " LIMIT %d", q.Limit)
		}
		if q.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", q.Offset)
		}
	}

	return Statement{SQL: b.String(), Args: p.args}, nil
}

type printer struct {
	d    Dialect
	args []Value
}

func (p *printer) bind(v Value) (string, error) {
	if err := v.Validate(); err != nil {
		return "", err
	}
	p.args = append(p.args, v)
	return p.d.Placeholder(len(p.args), v), nil
}

func (p *printer) selectColumn(name string) string {
	col := p.d.Column(name)
	if col == name {
		return col
	}
	return col + " AS " + name
}

func (p *printer) operand(o Operand) (string, error) {
	switch o.kind {
	case operandMapKey:
		ph, err := p.bind(String(o.key))
		if err != nil {
			return "", err
		}
		return p.d.MapKey(p.d.Column(o.column), ph), nil
	case operandMapNumber:
		ph, err := p.bind(String(o.key))
		if err != nil {
			return "", err
		}
		return p.d.MapNumber(p.d.Column(o.column), ph), nil
	case operandMapText:
		return p.d.MapText(p.d.Column(o.column)), nil
	default:
		return p.d.Column(o.column), nil
	}
}

func (p *printer) expr(e Expr) (string, error) {
	switch e.kind {
	case exprTrue:
		return "1 = 1", nil
	case exprFalse:
		return "1 = 0", nil
	case exprCompare:
		left, err := p.operand(e.left)
		if err != nil {
			return "", err
		}
		if e.op == OpContains {
			if err := e.value.Validate(); err != nil {
				return "", err
			}
			p.args = append(p.args, String(p.d.ContainsNeedle(e.value.s)))
			return p.d.Contains(left, p.d.Placeholder(len(p.args), e.value)), nil
		}
		ph, err := p.bind(e.value)
		if err != nil {
			return "", err
		}
		op := e.op.String()
		if e.op == OpNe {
			op = "<>"
		}
		return left + " " + op + " " + ph, nil
	case exprIn:
		left, err := p.operand(e.left)
		if err != nil {
			return "", err
		}
		phs := make([]string, len(e.values))
		for i, v := range e.values {
			if phs[i], err = p.bind(v); err != nil {
				return "", err
			}
		}
		return left + " IN (" + strings.Join(phs, ", ") + ")", nil
	case exprNot:
		inner, err := p.expr(e.args[0])
		if err != nil {
			return "", err
		}
		// A comparison against NULL is unknown rather than false; fold it
		// to false first so negation agrees with Match.
		return "NOT COALESCE((" + inner + "), FALSE)", nil
	default:
		sep := " AND "
		if e.kind == exprOr {
			sep = " OR "
		}
		parts := make([]string, len(e.args))
		for i, arg := range e.args {
			s, err := p.expr(arg)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, sep) + ")", nil
	}
}
