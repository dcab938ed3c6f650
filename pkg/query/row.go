package query

import (
	"encoding/json"
	"strconv"
	"time"
)

// Row is one result row keyed by logical column name. Engines normalize
// values to string, int64, float64, time.Time, or map[string]string.
type Row map[string]any

// String returns the column as a string, or "" when absent.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Int64 returns the column as an int64, or 0 when absent or not numeric.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		i, _ := strconv.ParseInt(v, 10, 64)
		return i
	default:
		return 0
	}
}

// Float64 returns the column as a float64, or 0 when absent or not numeric.
func (r Row) Float64(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Time returns the column as a time, or the zero time when absent.
func (r Row) Time(col string) time.Time {
	if t, ok := r[col].(time.Time); ok {
		return t
	}
	return time.Time{}
}

// Map returns the column as a string map. The result is never nil.
func (r Row) Map(col string) map[string]string {
	if m, ok := r[col].(map[string]string); ok && m != nil {
		return m
	}
	return map[string]string{}
}
