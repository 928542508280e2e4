package style

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Align is a column alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
	AlignCenter
)

// Column describes one table column. Width is in visible characters.
type Column struct {
	Name  string
	Width int
	Align Align
}

// Table renders fixed-width columns. Cells may contain ANSI styling; widths
// are measured on the plain text.
type Table struct {
	columns   []Column
	rows      [][]string
	indent    string
	headerSep bool
}

// NewTable returns a table with a header separator and a two-space indent.
func NewTable(columns ...Column) *Table {
	return &Table{
		columns:   columns,
		indent:    "  ",
		headerSep: true,
	}
}

// SetIndent sets the prefix of every line.
func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

// SetHeaderSeparator toggles the rule under the header.
func (t *Table) SetHeaderSeparator(on bool) *Table {
	t.headerSep = on
	return t
}

// AddRow appends a row, padding missing cells with empty strings.
func (t *Table) AddRow(values ...string) *Table {
	row := make([]string, len(t.columns))
	copy(row, values)
	t.rows = append(t.rows, row)
	return t
}

// Render returns the table as text, one line per row.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(t.indent)
	for i, col := range t.columns {
		if i > 0 {
			sb.WriteString(" ")
		}
		name := truncate(col.Name, col.Width)
		sb.WriteString(t.pad(name, Bold.Render(name), col.Width, col.Align))
	}
	sb.WriteString("\n")

	if t.headerSep {
		total := 0
		for i, col := range t.columns {
			if i > 0 {
				total++
			}
			total += col.Width
		}
		sb.WriteString(t.indent)
		sb.WriteString(Dim.Render(strings.Repeat("─", total)))
		sb.WriteString("\n")
	}

	for _, row := range t.rows {
		sb.WriteString(t.indent)
		for i, col := range t.columns {
			if i > 0 {
				sb.WriteString(" ")
			}
			cell := row[i]
			plain := stripAnsi(cell)
			// Truncation drops styling; the cell is rendered plain.
			if lipgloss.Width(plain) > col.Width {
				plain = truncate(plain, col.Width)
				cell = plain
			}
			sb.WriteString(t.pad(plain, cell, col.Width, col.Align))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// pad pads styled to width using the visible width of plain.
func (t *Table) pad(plain, styled string, width int, align Align) string {
	w := lipgloss.Width(plain)
	if w >= width {
		return styled
	}
	gap := width - w
	switch align {
	case AlignRight:
		return strings.Repeat(" ", gap) + styled
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + styled + strings.Repeat(" ", gap-left)
	default:
		return styled + strings.Repeat(" ", gap)
	}
}

// truncate shortens s to width visible characters, ending in "...".
func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}
