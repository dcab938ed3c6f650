package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	// OpContains is a case-insensitive substring match.
	OpContains
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpContains:
		return "contains"
	default:
		return "?"
	}
}

type operandKind int

const (
	operandColumn operandKind = iota
	operandMapKey
	operandMapText
	operandMapNumber
)

// Operand is the left-hand side of a comparison.
type Operand struct {
	kind   operandKind
	column string
	key    string
}

// Col references a plain column.
func Col(name string) Operand { return Operand{kind: operandColumn, column: name} }

// MapKey references one entry of a map column. A missing key reads as the
// empty string.
func MapKey(column, key string) Operand {
	return Operand{kind: operandMapKey, column: column, key: key}
}

// MapNumber references one entry of a map column read as a number. Entries
// that are missing or not numeric never match.
func MapNumber(column, key string) Operand {
	return Operand{kind: operandMapNumber, column: column, key: key}
}

// MapText references the serialized text of a whole map column.
func MapText(column string) Operand { return Operand{kind: operandMapText, column: column} }

// Column returns the referenced column name.
func (o Operand) Column() string { return o.column }

func (o Operand) String() string {
	switch o.kind {
	case operandMapKey:
		return fmt.Sprintf("%s[%q]", o.column, o.key)
	case operandMapText:
		return fmt.Sprintf("text(%s)", o.column)
	case operandMapNumber:
		return fmt.Sprintf("number(%s[%q])", o.column, o.key)
	default:
		return o.column
	}
}

// valueType returns the type of the operand, given its column type.
func (o Operand) valueType(s *Schema) (ColumnType, error) {
	t, ok := s.Lookup(o.column)
	if !ok {
		return 0, invalidf("unknown column %q for %s", o.column, s.Table)
	}
	switch o.kind {
	case operandMapKey, operandMapNumber:
		if t != TypeMap {
			return 0, invalidf("column %q is not a map", o.column)
		}
		if err := ValidateLiteral(o.key); err != nil {
			return 0, err
		}
		if o.key == "" {
			return 0, invalidf("empty key for map column %q", o.column)
		}
		if o.kind == operandMapNumber {
			return TypeFloat, nil
		}
		return TypeString, nil
	case operandMapText:
		if t != TypeMap {
			return 0, invalidf("column %q is not a map", o.column)
		}
		return TypeString, nil
	default:
		if t == TypeMap {
			return 0, invalidf("map column %q needs a key", o.column)
		}
		return t, nil
	}
}

type exprKind int

const (
	exprTrue exprKind = iota
	exprFalse
	exprCompare
	exprIn
	exprAnd
	exprOr
	exprNot
)

// Expr is an immutable boolean expression over the columns of one schema.
// The zero value is the tautology.
type Expr struct {
	kind   exprKind
	op     Op
	left   Operand
	value  Value
	values []Value
	args   []Expr
}

// True returns the tautology; it matches every row.
func True() Expr { return Expr{kind: exprTrue} }

// False returns the contradiction; it matches no row.
func False() Expr { return Expr{kind: exprFalse} }

// Compare returns "left op value".
func Compare(left Operand, op Op, value Value) Expr {
	return Expr{kind: exprCompare, op: op, left: left, value: value}
}

// Eq returns "left = value".
func Eq(left Operand, value Value) Expr { return Compare(left, OpEq, value) }

// Ne returns "left != value".
func Ne(left Operand, value Value) Expr { return Compare(left, OpNe, value) }

// Gte returns "left >= value".
func Gte(left Operand, value Value) Expr { return Compare(left, OpGte, value) }

// Lt returns "left < value".
func Lt(left Operand, value Value) Expr { return Compare(left, OpLt, value) }

// Contains returns a case-insensitive substring match of needle in left.
func Contains(left Operand, needle string) Expr {
	return Compare(left, OpContains, String(needle))
}

// In returns "left IN (values...)". An empty list matches nothing.
func In(left Operand, values ...Value) Expr {
	if len(values) == 0 {
		return False()
	}
	return Expr{kind: exprIn, left: left, values: values}
}

// And joins expressions with AND. Tautologies are dropped, so And() and
// And(True()) are both True.
func And(exprs ...Expr) Expr {
	args := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		switch e.kind {
		case exprTrue:
			continue
		case exprFalse:
			return False()
		case exprAnd:
			args = append(args, e.args...)
		default:
			args = append(args, e)
		}
	}
	return join(exprAnd, args, True())
}

// Or joins expressions with OR. Or() is False.
func Or(exprs ...Expr) Expr {
	args := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		switch e.kind {
		case exprFalse:
			continue
		case exprTrue:
			return True()
		case exprOr:
			args = append(args, e.args...)
		default:
			args = append(args, e)
		}
	}
	return join(exprOr, args, False())
}

func join(kind exprKind, args []Expr, empty Expr) Expr {
	switch len(args) {
	case 0:
		return empty
	case 1:
		return args[0]
	default:
		return Expr{kind: kind, args: args}
	}
}

// Not negates e.
func Not(e Expr) Expr {
	switch e.kind {
	case exprTrue:
		return False()
	case exprFalse:
		return True()
	case exprNot:
		return e.args[0]
	}
	return Expr{kind: exprNot, args: []Expr{e}}
}

// IsTrue reports whether e is the tautology.
func (e Expr) IsTrue() bool { return e.kind == exprTrue }

// Validate checks every column reference and literal in e against s.
func (e Expr) Validate(s *Schema) error {
	switch e.kind {
	case exprTrue, exprFalse:
		return nil
	case exprCompare:
		t, err := e.left.valueType(s)
		if err != nil {
			return err
		}
		if e.op == OpContains && t != TypeString {
			return invalidf("contains needs a string column, %s is %s", e.left, t)
		}
		if !e.value.accepts(t) {
			return invalidf("cannot compare %s column %s with %v", t, e.left, e.value)
		}
		return e.value.Validate()
	case exprIn:
		t, err := e.left.valueType(s)
		if err != nil {
			return err
		}
		for _, v := range e.values {
			if !v.accepts(t) {
				return invalidf("cannot compare %s column %s with %v", t, e.left, v)
			}
			if err := v.Validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, arg := range e.args {
			if err := arg.Validate(s); err != nil {
				return err
			}
		}
		return nil
	}
}

func (e Expr) String() string {
	switch e.kind {
	case exprTrue:
		return "true"
	case exprFalse:
		return "false"
	case exprCompare:
		return fmt.Sprintf("%s %s %q", e.left, e.op, e.value.String())
	case exprIn:
		parts := make([]string, len(e.values))
		for i, v := range e.values {
			parts[i] = fmt.Sprintf("%q", v.String())
		}
		return fmt.Sprintf("%s in (%s)", e.left, strings.Join(parts, ", "))
	case exprNot:
		return "not (" + e.args[0].String() + ")"
	default:
		sep := " and "
		if e.kind == exprOr {
			sep = " or "
		}
		parts := make([]string, len(e.args))
		for i, arg := range e.args {
			parts[i] = arg.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
}

// Match evaluates e against a normalized row. Comparisons against a missing
// column never match, as with SQL NULL.
func (e Expr) Match(row Row) bool {
	switch e.kind {
	case exprTrue:
		return true
	case exprFalse:
		return false
	case exprCompare:
		actual, ok := e.left.read(row)
		if !ok {
			return false
		}
		if e.op == OpContains {
			s, ok := actual.(string)
			return ok && strings.Contains(strings.ToLower(s), strings.ToLower(e.value.s))
		}
		c, ok := compare(actual, e.value)
		if !ok {
			return false
		}
		switch e.op {
		case OpEq:
			return c == 0
		case OpNe:
			return c != 0
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		}
		return false
	case exprIn:
		actual, ok := e.left.read(row)
		if !ok {
			return false
		}
		for _, v := range e.values {
			if c, ok := compare(actual, v); ok && c == 0 {
				return true
			}
		}
		return false
	case exprAnd:
		for _, arg := range e.args {
			if !arg.Match(row) {
				return false
			}
		}
		return true
	case exprOr:
		for _, arg := range e.args {
			if arg.Match(row) {
				return true
			}
		}
		return false
	case exprNot:
		return !e.args[0].Match(row)
	}
	return false
}

func (o Operand) read(row Row) (any, bool) {
	v, ok := row[o.column]
	if !ok || v == nil {
		return nil, false
	}
	switch o.kind {
	case operandMapKey:
		m, ok := v.(map[string]string)
		if !ok {
			return nil, false
		}
		return m[o.key], true
	case operandMapText:
		m, ok := v.(map[string]string)
		if !ok {
			return nil, false
		}
		return mapText(m), true
	case operandMapNumber:
		m, ok := v.(map[string]string)
		if !ok {
			return nil, false
		}
		f, err := strconv.ParseFloat(m[o.key], 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return v, true
	}
}

// mapText serializes m the way Postgres prints jsonb: keys ordered by
// length then bytes, with ", " and ": " separators.
func mapText(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(jsonString(k))
		b.WriteString(": ")
		b.WriteString(jsonString(m[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

func compare(actual any, v Value) (int, bool) {
	switch v.kind {
	case KindString:
		s, ok := actual.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, v.s), true
	case KindTime:
		t, ok := actual.(time.Time)
		if !ok {
			return 0, false
		}
		return t.Compare(v.t), true
	case KindInt:
		if i, ok := actual.(int64); ok {
			return cmpOrdered(i, v.i), true
		}
	}
	f, ok := toFloat(actual)
	if !ok {
		return 0, false
	}
	return cmpOrdered(f, v.asFloat()), true
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
