package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderLines(t *testing.T, tbl *Table) []string {
	t.Helper()
	return strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
}

func TestNewTable_Defaults(t *testing.T) {
	tbl := NewTable(Column{Name: "ID", Width: 8}, Column{Name: "STATUS", Width: 12})
	assert.Len(t, tbl.columns, 2)
	assert.True(t, tbl.headerSep)
	assert.Equal(t, "  ", tbl.indent)
}

func TestTable_Chaining(t *testing.T) {
	tbl := NewTable(Column{Name: "A", Width: 5})
	assert.Same(t, tbl, tbl.SetIndent(""))
	assert.Same(t, tbl, tbl.SetHeaderSeparator(false))
	assert.Same(t, tbl, tbl.AddRow("x"))
}

func TestTable_AddRowPadsMissingCells(t *testing.T) {
	tbl := NewTable(Column{Name: "A", Width: 5}, Column{Name: "B", Width: 5})
	tbl.AddRow("only")
	tbl.AddRow("x", "y", "ignored")

	require.Len(t, tbl.rows, 2)
	assert.Equal(t, []string{"only", ""}, tbl.rows[0])
	assert.Equal(t, []string{"x", "y"}, tbl.rows[1])
}

func TestTable_RenderNoColumns(t *testing.T) {
	assert.Equal(t, "", NewTable().Render())
}

func TestTable_RenderHeaderAndSeparator(t *testing.T) {
	tbl := NewTable(Column{Name: "ID", Width: 4}, Column{Name: "CMD", Width: 6}).SetIndent("")
	tbl.AddRow("ab12", "make")

	lines := renderLines(t, tbl)
	require.Len(t, lines, 3)
	assert.Equal(t, "ID   CMD   ", stripAnsi(lines[0]))
	assert.Equal(t, strings.Repeat("─", 11), stripAnsi(lines[1]))
	assert.Equal(t, "ab12 make  ", stripAnsi(lines[2]))
}

func TestTable_RenderWithoutSeparator(t *testing.T) {
	tbl := NewTable(Column{Name: "ID", Width: 4}).SetIndent("").SetHeaderSeparator(false)
	tbl.AddRow("a").AddRow("b")

	lines := renderLines(t, tbl)
	require.Len(t, lines, 3)
	assert.Equal(t, "a   ", stripAnsi(lines[1]))
	assert.Equal(t, "b   ", stripAnsi(lines[2]))
}

func TestTable_RenderIndent(t *testing.T) {
	tbl := NewTable(Column{Name: "A", Width: 3}).SetIndent("> ")
	tbl.AddRow("x")

	for _, line := range renderLines(t, tbl) {
		assert.True(t, strings.HasPrefix(line, "> "), "line %q", line)
	}
}

func TestTable_StyledCellsKeepAlignment(t *testing.T) {
	tbl := NewTable(Column{Name: "S", Width: 10}, Column{Name: "N", Width: 3}).
		SetIndent("").SetHeaderSeparator(false)
	tbl.AddRow("\x1b[32m[done]\x1b[0m", "1")
	tbl.AddRow("[running]", "2")

	lines := renderLines(t, tbl)
	assert.Equal(t, "[done]     1  ", stripAnsi(lines[1]))
	assert.Equal(t, "[running]  2  ", stripAnsi(lines[2]))
}

func TestTable_Truncation(t *testing.T) {
	tbl := NewTable(Column{Name: "COMMAND", Width: 8}).SetIndent("").SetHeaderSeparator(false)
	tbl.AddRow("sh -c 'sleep 1000'")

	lines := renderLines(t, tbl)
	assert.Equal(t, "sh -c...", lines[1])
}

func TestTable_Pad(t *testing.T) {
	tbl := &Table{}
	tests := []struct {
		name  string
		plain string
		width int
		align Align
		want  string
	}{
		{"left", "hi", 6, AlignLeft, "hi    "},
		{"right", "hi", 6, AlignRight, "    hi"},
		{"center", "hi", 6, AlignCenter, "  hi  "},
		{"center odd", "hi", 5, AlignCenter, " hi  "},
		{"exact", "hello", 5, AlignLeft, "hello"},
		{"overflow", "toolong", 3, AlignLeft, "toolong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tbl.pad(tt.plain, tt.plain, tt.width, tt.align))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "ab", truncate("abcdefgh", 2))
	assert.Equal(t, "héll...", truncate("héllo wörld", 7))
}

func TestStripAnsi(t *testing.T) {
	assert.Equal(t, "hello", stripAnsi("hello"))
	assert.Equal(t, "red", stripAnsi("\x1b[31mred\x1b[0m"))
	assert.Equal(t, "bold red", stripAnsi("\x1b[1m\x1b[31mbold red\x1b[0m"))
	assert.Equal(t, "", stripAnsi(""))
}
