package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/instantcocoa/periscope/pkg/query"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	query.ClickHouseTimeLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Normalize converts a driver or JSON value to the canonical Go type of t:
// string, int64, float64, time.Time (UTC), or map[string]string.
func Normalize(t query.ColumnType, v any) (any, error) {
	switch t {
	case query.TypeString:
		return normalizeString(v)
	case query.TypeInt:
		return normalizeInt(v)
	case query.TypeFloat:
		return normalizeFloat(v)
	case query.TypeTime:
		return normalizeTime(v)
	case query.TypeMap:
		return normalizeMap(v)
	default:
		return nil, fmt.Errorf("unsupported column type %s", t)
	}
}

func normalizeString(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case json.Number:
		return s.String(), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	default:
		return nil, fmt.Errorf("cannot read %T as string", v)
	}
}

func normalizeInt(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return int64(0), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return int64(f), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return nil, fmt.Errorf("cannot read %T as int", v)
	}
}

func normalizeFloat(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return float64(0), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	default:
		return nil, fmt.Errorf("cannot read %T as float", v)
	}
}

func normalizeTime(v any) (any, error) {
	switch ts := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return ts.UTC(), nil
	case []byte:
		return parseTime(string(ts))
	case string:
		return parseTime(ts)
	default:
		return nil, fmt.Errorf("cannot read %T as time", v)
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func normalizeMap(v any) (any, error) {
	switch m := v.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		if m == nil {
			return map[string]string{}, nil
		}
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, raw := range m {
			s, err := normalizeString(raw)
			if err != nil {
				b, _ := json.Marshal(raw)
				s = string(b)
			}
			out[k] = s.(string)
		}
		return out, nil
	case []byte:
		return decodeMap(m)
	case string:
		return decodeMap([]byte(m))
	default:
		return nil, fmt.Errorf("cannot read %T as map", v)
	}
}

func decodeMap(b []byte) (any, error) {
	if len(b) == 0 {
		return map[string]string{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return normalizeMap(raw)
}
