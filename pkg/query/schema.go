package query

// ColumnType is the storage type of a column as seen by the query layer.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInt
	TypeFloat
	TypeTime
	// TypeMap is a string-to-string attribute map.
	TypeMap
)

func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeTime:
		return "time"
	case TypeMap:
		return "map"
	default:
		return "unknown"
	}
}

// Column declares one column of a logical table.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is the allow-list for a logical table. Every column referenced by
// an expression, projection, or ordering must be declared here.
type Schema struct {
	Table   string
	Columns []Column

	// TimeColumn is the column time windows apply to.
	TimeColumn string

	// Searchable columns take part in free-text search. Map columns are
	// searched through their serialized text.
	Searchable []string

	// Sortable columns may be requested as sort keys by callers.
	Sortable []string
}

// Lookup returns the type of the named column.
func (s *Schema) Lookup(name string) (ColumnType, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return 0, false
}

// ColumnNames returns every declared column name in declaration order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// CanSort reports whether callers may sort by the named column.
func (s *Schema) CanSort(name string) bool {
	for _, c := range s.Sortable {
		if c == name {
			return true
		}
	}
	return false
}
