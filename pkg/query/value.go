package query

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxLiteralLength bounds the byte length of a string literal.
const MaxLiteralLength = 4096

// Kind identifies the type of a literal Value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindTime
)

// Value is a typed literal. Values are always bound as statement
// parameters and never spliced into statement text.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	t    time.Time
}

// String returns a string literal.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer literal.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point literal.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Time returns a timestamp literal, normalized to UTC.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

// Kind returns the literal kind.
func (v Value) Kind() Kind { return v.kind }

// Interface returns the literal as a plain Go value suitable for
// database/sql arguments.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindTime:
		return v.t
	default:
		return v.s
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return v.s
	}
}

// Validate rejects string literals that no backend can bind safely.
func (v Value) Validate() error {
	if v.kind != KindString {
		return nil
	}
	return ValidateLiteral(v.s)
}

// ValidateLiteral reports whether s may be used as a string literal.
// Quotes, semicolons and comment markers are fine since literals are bound,
// but NUL bytes, invalid UTF-8, and oversized input are refused.
func ValidateLiteral(s string) error {
	if len(s) > MaxLiteralLength {
		return invalidf("literal exceeds %d bytes", MaxLiteralLength)
	}
	if !utf8.ValidString(s) {
		return invalidf("literal is not valid UTF-8")
	}
	if strings.IndexByte(s, 0) >= 0 {
		return invalidf("literal contains a NUL byte")
	}
	return nil
}

func (v Value) asFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// accepts reports whether a literal of this kind may be compared with a
// column of type t.
func (v Value) accepts(t ColumnType) bool {
	switch t {
	case TypeString:
		return v.kind == KindString
	case TypeInt, TypeFloat:
		return v.kind == KindInt || v.kind == KindFloat
	case TypeTime:
		return v.kind == KindTime
	default:
		return false
	}
}
