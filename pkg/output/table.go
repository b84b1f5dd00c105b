// Package output renders suite results for the terminal and for machines:
// aligned tables for people, CSV, JSON and XML for tools.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Column is one table column.
//
// Fields:
//   - Header: Header text
//   - Width: Current display width in terminal cells
//   - MaxWidth: Values wider than this are clipped; zero means unlimited
//   - hidden: Whether the column is left out of every row
type Column struct {
	Header   string
	Width    int
	MaxWidth int
	hidden   bool
}

// Table lays out rows in columns whose widths grow to fit the widest value.
// Widths are measured in terminal cells so icons and wide runes line up.
type Table struct {
	columns   []Column
	separator string
}

// NewTable creates an empty table using two spaces between columns.
func NewTable() *Table {
	return &Table{separator: "  "}
}

// AddColumn appends a column sized to its header.
func (t *Table) AddColumn(header string) *Table {
	t.columns = append(t.columns, Column{Header: header, Width: DisplayWidth(header)})
	return t
}

// AddColumnWithMinWidth appends a column at least minWidth cells wide.
func (t *Table) AddColumnWithMinWidth(header string, minWidth int) *Table {
	t.AddColumn(header)
	col := &t.columns[len(t.columns)-1]
	if minWidth > col.Width {
		col.Width = minWidth
	}
	return t
}

// AddClippedColumn appends a column whose values are cut at maxWidth cells.
func (t *Table) AddClippedColumn(header string, maxWidth int) *Table {
	t.AddColumn(header)
	t.columns[len(t.columns)-1].MaxWidth = maxWidth
	return t
}

// AddConditionalColumn appends a column that starts hidden unless visible is set.
func (t *Table) AddConditionalColumn(header string, visible bool) *Table {
	t.AddColumn(header)
	t.columns[len(t.columns)-1].hidden = !visible
	return t
}

// SetColumnVisible shows or hides the column at index. Out of range indexes
// are ignored.
func (t *Table) SetColumnVisible(index int, visible bool) *Table {
	if index >= 0 && index < len(t.columns) {
		t.columns[index].hidden = !visible
	}
	return t
}

// UpdateWidths widens columns so the given row fits.
//
// It performs the following operations:
//   - Step 1: Clips every value to its column's MaxWidth
//   - Step 2: Measures the clipped value in terminal cells
//   - Step 3: Keeps the larger of that and the current width
//
// Parameters:
//   - values: One value per column, hidden columns included
//
// Returns:
//   - *Table: The table, for chaining
func (t *Table) UpdateWidths(values ...string) *Table {
	for i, val := range values {
		if i >= len(t.columns) {
			break
		}
		col := &t.columns[i]
		if w := DisplayWidth(Clip(val, col.MaxWidth)); w > col.Width {
			col.Width = w
		}
	}
	return t
}

// HeaderRow returns the padded headers of the visible columns.
func (t *Table) HeaderRow() string {
	var parts []string
	for _, col := range t.columns {
		if !col.hidden {
			parts = append(parts, ToWidth(col.Header, col.Width))
		}
	}
	return strings.TrimRight(strings.Join(parts, t.separator), " ")
}

// SeparatorRow returns a row of dashes as wide as each visible column.
func (t *Table) SeparatorRow() string {
	var parts []string
	for _, col := range t.columns {
		if !col.hidden {
			parts = append(parts, strings.Repeat("-", col.Width))
		}
	}
	return strings.Join(parts, t.separator)
}

// FormatRow pads one data row to the column widths.
//
// Values for hidden columns must still be passed and are skipped. Missing
// trailing values render as empty cells. Trailing padding is trimmed.
//
// Parameters:
//   - values: One value per column, hidden columns included
//
// Returns:
//   - string: The formatted row
func (t *Table) FormatRow(values ...string) string {
	var parts []string
	for i, col := range t.columns {
		if col.hidden {
			continue
		}
		val := ""
		if i < len(values) {
			val = Clip(values[i], col.MaxWidth)
		}
		parts = append(parts, ToWidth(val, col.Width))
	}
	return strings.TrimRight(strings.Join(parts, t.separator), " ")
}

// Fprint writes the header and separator rows to w.
func (t *Table) Fprint(w io.Writer) {
	_, _ = fmt.Fprintln(w, t.HeaderRow())
	_, _ = fmt.Fprintln(w, t.SeparatorRow())
}
