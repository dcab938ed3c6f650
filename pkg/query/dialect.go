package query

import (
	"fmt"
	"strings"
)

// Postgres renders statements for PostgreSQL with $N placeholders. Map
// columns are jsonb.
type Postgres struct{}

var _ Dialect = Postgres{}

func (Postgres) Table(name string) string  { return name }
func (Postgres) Column(name string) string { return name }

func (Postgres) Placeholder(n int, _ Value) string { return fmt.Sprintf("$%d", n) }

func (Postgres) MapKey(column, keyPlaceholder string) string {
	return fmt.Sprintf("(%s->>%s)", column, keyPlaceholder)
}

// MapNumber casts the entry only when it is a plain decimal so that
// non-numeric values compare as NULL instead of failing the statement.
func (Postgres) MapNumber(column, keyPlaceholder string) string {
	entry := fmt.Sprintf("(%s->>%s)", column, keyPlaceholder)
	return fmt.Sprintf("(CASE WHEN %s ~ '^-?[0-9]+(\\.[0-9]+)?$' THEN %s::double precision END)", entry, entry)
}

func (Postgres) MapText(column string) string { return column + "::text" }

func (Postgres) Contains(operand, placeholder string) string {
	return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, operand, placeholder)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsNeedle escapes LIKE metacharacters and wraps s in wildcards.
func (Postgres) ContainsNeedle(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func (Postgres) CountExpr() string { return "count(*)" }

// ClickHouse renders statements for the ClickHouse HTTP interface. Values
// are bound as {pN:Type} query parameters and sent as param_pN.
type ClickHouse struct {
	// Tables and Columns map logical names onto physical ones. Names
	// missing from the maps are used as is.
	Tables  map[string]string
	Columns map[string]string
}

var _ Dialect = ClickHouse{}

func (c ClickHouse) Table(name string) string {
	if phys, ok := c.Tables[name]; ok {
		name = phys
	}
	return quoteBackticks(name)
}

func (c ClickHouse) Column(name string) string {
	if phys, ok := c.Columns[name]; ok {
		return quoteBackticks(phys)
	}
	return name
}

func quoteBackticks(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (ClickHouse) Placeholder(n int, v Value) string {
	return fmt.Sprintf("{p%d:%s}", n, clickHouseType(v))
}

func clickHouseType(v Value) string {
	switch v.Kind() {
	case KindInt:
		return "Int64"
	case KindFloat:
		return "Float64"
	case KindTime:
		return "DateTime64(9, 'UTC')"
	default:
		return "String"
	}
}

func (ClickHouse) MapKey(column, keyPlaceholder string) string {
	return fmt.Sprintf("%s[%s]", column, keyPlaceholder)
}

func (ClickHouse) MapNumber(column, keyPlaceholder string) string {
	return fmt.Sprintf("toFloat64OrNull(%s[%s])", column, keyPlaceholder)
}

func (ClickHouse) MapText(column string) string { return "toString(" + column + ")" }

func (ClickHouse) Contains(operand, placeholder string) string {
	return fmt.Sprintf("positionCaseInsensitiveUTF8(%s, %s) > 0", operand, placeholder)
}

func (ClickHouse) ContainsNeedle(s string) string { return s }

func (ClickHouse) CountExpr() string { return "count()" }

// ClickHouseTimeLayout is the text form of DateTime64(9) parameters.
const ClickHouseTimeLayout = "2006-01-02 15:04:05.000000000"

var paramEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
	`'`, `\'`,
)

// Params returns the HTTP query parameters binding the statement's values.
// String values are escaped for the parameter text format.
func (ClickHouse) Params(stmt Statement) map[string]string {
	params := make(map[string]string, len(stmt.Args))
	for i, v := range stmt.Args {
		var text string
		switch v.Kind() {
		case KindTime:
			text = v.t.UTC().Format(ClickHouseTimeLayout)
		case KindString:
			text = paramEscaper.Replace(v.s)
		default:
			text = v.String()
		}
		params[fmt.Sprintf("param_p%d", i+1)] = text
	}
	return params
}
