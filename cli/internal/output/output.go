// Package output provides output formatting for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat returns the format named s. Empty selects FormatTable.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Writer renders command results in one format.
type Writer struct {
	format Format
	out    io.Writer
}

// NewWriter creates a writer for format on out.
func NewWriter(format Format, out io.Writer) *Writer {
	return &Writer{format: format, out: out}
}

// Structured reports whether results are written as a document rather than
// a table.
func (w *Writer) Structured() bool {
	return w.format == FormatJSON || w.format == FormatYAML
}

// Print writes data as JSON or YAML, or as a table when data is a Table.
// Non-table data falls back to JSON in table mode.
func (w *Writer) Print(data any) error {
	switch w.format {
	case FormatYAML:
		return w.printYAML(data)
	case FormatJSON:
		return w.printJSON(data)
	}
	if t, ok := data.(Table); ok {
		return w.writeTable(t)
	}
	return w.printJSON(data)
}

func (w *Writer) printJSON(data any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// printYAML round-trips data through JSON so field names and enum text
// match the JSON output.
func (w *Writer) printYAML(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	enc := yaml.NewEncoder(w.out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Append adds a row.
func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (w *Writer) writeTable(t Table) error {
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	writeRow(tw, t.Headers)
	for _, row := range t.Rows {
		writeRow(tw, row)
	}
	return tw.Flush()
}

func writeRow(w io.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, cell)
	}
	fmt.Fprintln(w)
}

// Infof prints an informational line.
func (w *Writer) Infof(format string, args ...any) {
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Successf prints a success line.
func (w *Writer) Successf(format string, args ...any) {
	fmt.Fprintf(w.out, "✓ "+format+"\n", args...)
}

// Millis formats a duration as milliseconds with up to two decimals.
func Millis(d time.Duration) string {
	return FormatMillis(float64(d) / float64(time.Millisecond))
}

// FormatMillis formats a millisecond value rounded to two decimals.
func FormatMillis(ms float64) string {
	return strconv.FormatFloat(math.Round(ms*100)/100, 'f', -1, 64) + "ms"
}

// Percent formats a ratio in [0, 1] as a percentage.
func Percent(ratio float64) string {
	return strconv.FormatFloat(ratio*100, 'f', 1, 64) + "%"
}

// Timestamp formats t for table cells.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

// Truncate shortens s to n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
