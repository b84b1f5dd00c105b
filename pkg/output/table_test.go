package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func widths(t *Table) []int {
	out := make([]int, 0, len(t.columns))
	for _, c := range t.columns {
		out = append(out, c.Width)
	}
	return out
}

// TestNewTable tests the behavior of NewTable.
func TestNewTable(t *testing.T) {
	table := NewTable()
	require.NotNil(t, table)
	assert.Empty(t, table.columns)
	assert.Equal(t, "  ", table.separator)
}

// TestTableAddColumn tests the column constructors.
//
// It verifies:
//   - Columns start at their header width
//   - Minimum widths apply only when wider than the header
//   - Chained calls return the same table
func TestTableAddColumn(t *testing.T) {
	table := NewTable().
		AddColumn("TEST").
		AddColumnWithMinWidth("STATUS", 10).
		AddColumnWithMinWidth("DURATION", 2).
		AddClippedColumn("REASONS", 20)

	assert.Equal(t, []int{4, 10, 8, 7}, widths(table))

	same := NewTable()
	assert.Same(t, same, same.AddColumn("X"))
}

// TestTableUpdateWidths tests width growth with wide runes and clipping.
func TestTableUpdateWidths(t *testing.T) {
	table := NewTable().AddColumn("S").AddColumn("TEST").AddClippedColumn("WHY", 10)

	table.UpdateWidths("🟢", "channels/basic", "a very long failure reason")
	assert.Equal(t, []int{2, 14, 10}, widths(table), "emoji occupies two cells, WHY clipped at MaxWidth")

	table.UpdateWidths("x", "short", "ok", "ignored extra")
	assert.Equal(t, []int{2, 14, 10}, widths(table), "never shrinks")
}

// TestTableRows tests header, separator and data row formatting.
func TestTableRows(t *testing.T) {
	table := NewTable().AddColumn("TEST").AddColumn("STATUS").AddClippedColumn("REASONS", 8)
	table.UpdateWidths("sip/options", "Failed", "Fail token present")

	assert.Equal(t, "TEST         STATUS  REASONS", table.HeaderRow())
	assert.Equal(t, "-----------  ------  --------", table.SeparatorRow())
	assert.Equal(t, "sip/options  Failed  Fail to…", table.FormatRow("sip/options", "Failed", "Fail token present"))
	assert.Equal(t, "a            Passed", table.FormatRow("a", "Passed"))
}

// TestTableHiddenColumns tests that hidden columns are left out of every row.
func TestTableHiddenColumns(t *testing.T) {
	table := NewTable().AddColumn("A").AddConditionalColumn("B", false).AddColumn("C")
	assert.Equal(t, "A  C", table.HeaderRow())
	assert.Equal(t, "1  3", table.FormatRow("1", "2", "3"))

	table.SetColumnVisible(1, true).SetColumnVisible(7, false)
	assert.Equal(t, "1  2  3", table.FormatRow("1", "2", "3"))
}

// TestTableFprint tests that Fprint writes header and separator lines.
func TestTableFprint(t *testing.T) {
	var buf bytes.Buffer
	NewTable().AddColumn("TEST").AddColumn("STATUS").Fprint(&buf)
	assert.Equal(t, "TEST  STATUS\n----  ------\n", buf.String())
}

// TestWidthHelpers tests DisplayWidth, ToWidth and Clip.
func TestWidthHelpers(t *testing.T) {
	assert.Equal(t, 3, DisplayWidth("abc"))
	assert.Equal(t, 2, DisplayWidth("❌"))
	assert.Equal(t, "ab  ", ToWidth("ab", 4))
	assert.Equal(t, "abcdef", ToWidth("abcdef", 4))
	assert.Equal(t, "ab", ToWidth("ab", 0))
	assert.Equal(t, "abcdef", Clip("abcdef", 0))
	assert.Equal(t, "abcdef", Clip("abcdef", 6))
	assert.Equal(t, "abc…", Clip("abcdef", 4))
}
