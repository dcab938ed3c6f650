package query

import "regexp"

// CountColumn is the column name count queries return their result in.
const CountColumn = "count"

// KeyColumn projects one entry of a map column as a string result column
// named As. A missing entry reads as the empty string.
type KeyColumn struct {
	Column string
	Key    string
	As     string
}

var aliasPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Query is a read request against one logical table.
type Query struct {
	Schema *Schema

	// Columns is the projection. Empty selects every declared column.
	Columns []string
	Keys    []KeyColumn
	Where   Expr
	OrderBy []Order

	// Limit of 0 means unlimited.
	Limit  int
	Offset int

	// Distinct returns distinct projected tuples.
	Distinct bool
	// Count returns a single row holding the number of matching rows
	// under CountColumn. Projection, ordering and paging are ignored.
	Count bool
}

// Projection returns the effective column projection. Every declared
// column is selected only when neither Columns nor Keys is set.
func (q Query) Projection() []string {
	if len(q.Columns) == 0 && len(q.Keys) == 0 && q.Schema != nil {
		return q.Schema.ColumnNames()
	}
	return q.Columns
}

// ResultType returns the type of a result column.
func (q Query) ResultType(name string) (ColumnType, bool) {
	if name == CountColumn {
		return TypeInt, true
	}
	for _, k := range q.Keys {
		if k.As == name {
			return TypeString, true
		}
	}
	if q.Schema == nil {
		return 0, false
	}
	return q.Schema.Lookup(name)
}

// Validate checks the query against its schema.
func (q Query) Validate() error {
	if q.Schema == nil {
		return invalidf("query has no schema")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return invalidf("negative limit or offset")
	}
	for _, c := range q.Projection() {
		if _, ok := q.Schema.Lookup(c); !ok {
			return invalidf("unknown column %q for %s", c, q.Schema.Table)
		}
	}
	aliases := make(map[string]bool, len(q.Keys))
	for _, k := range q.Keys {
		if _, err := MapKey(k.Column, k.Key).valueType(q.Schema); err != nil {
			return err
		}
		if !aliasPattern.MatchString(k.As) {
			return invalidf("invalid result column name %q", k.As)
		}
		if _, taken := q.Schema.Lookup(k.As); taken || k.As == CountColumn || aliases[k.As] {
			return invalidf("result column %q is already in use", k.As)
		}
		aliases[k.As] = true
	}
	for _, o := range q.OrderBy {
		t, ok := q.Schema.Lookup(o.Column)
		if !ok {
			return invalidf("unknown sort column %q for %s", o.Column, q.Schema.Table)
		}
		if t == TypeMap {
			return invalidf("cannot sort by map column %q", o.Column)
		}
	}
	return q.Where.Validate(q.Schema)
}
