package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Text writes formatted text to the formatter's writer.
func (f *Formatter) Text(format string, args ...interface{}) {
	fmt.Fprintf(f.writer, format, args...)
}

// Textln writes formatted text with a trailing newline.
func (f *Formatter) Textln(format string, args ...interface{}) {
	fmt.Fprintf(f.writer, format+"\n", args...)
}

// Line writes a blank line.
func (f *Formatter) Line() {
	fmt.Fprintln(f.writer)
}

// Table renders aligned columns. Widths are display widths, so wide runes in
// worker titles and pane text line up correctly. Rows wider than the
// terminal are squeezed by truncating the widest column.
type Table struct {
	writer   io.Writer
	headers  []string
	rows     [][]string
	widths   []int
	maxWidth int
}

// NewTable creates a table with the given column headers, sized to the
// attached terminal.
func NewTable(w io.Writer, headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	return &Table{writer: w, headers: headers, widths: widths, maxWidth: TerminalWidth(80)}
}

// AddRow appends a row. Extra columns beyond the headers are dropped.
func (t *Table) AddRow(cols ...string) {
	for i, c := range cols {
		if i < len(t.widths) {
			if w := runewidth.StringWidth(c); w > t.widths[i] {
				t.widths[i] = w
			}
		}
	}
	t.rows = append(t.rows, cols)
}

// Render writes the table: headers, a dashed separator, then rows.
func (t *Table) Render() {
	t.squeeze()
	t.writeRow(t.headers)

	seps := make([]string, len(t.widths))
	for i, w := range t.widths {
		seps[i] = strings.Repeat("-", w)
	}
	t.writeRow(seps)

	for _, row := range t.rows {
		t.writeRow(row)
	}
}

// squeeze shrinks the widest column until the rendered row fits maxWidth.
// A column never drops below its header width.
func (t *Table) squeeze() {
	if t.maxWidth <= 0 || len(t.widths) == 0 {
		return
	}
	// Two leading spaces plus two between each pair of columns.
	overhead := 2 + 2*(len(t.widths)-1)
	for {
		total := overhead
		for _, w := range t.widths {
			total += w
		}
		if total <= t.maxWidth {
			return
		}
		widest, floor := -1, 0
		for i, w := range t.widths {
			hw := runewidth.StringWidth(t.headers[i])
			if w > hw && (widest < 0 || w > t.widths[widest]) {
				widest, floor = i, hw
			}
		}
		if widest < 0 {
			return
		}
		w := t.widths[widest] - (total - t.maxWidth)
		if w < floor {
			w = floor
		}
		t.widths[widest] = w
	}
}

func (t *Table) writeRow(cols []string) {
	cells := make([]string, len(t.headers))
	for i := range t.headers {
		c := ""
		if i < len(cols) {
			c = cols[i]
		}
		if runewidth.StringWidth(c) > t.widths[i] {
			c = runewidth.Truncate(c, t.widths[i], "…")
		}
		cells[i] = runewidth.FillRight(c, t.widths[i])
	}
	fmt.Fprintf(t.writer, "  %s\n", strings.TrimRight(strings.Join(cells, "  "), " "))
}

// Pluralize returns the singular or plural form for count.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// CountStr renders "N item(s)".
func CountStr(count int, singular, plural string) string {
	return fmt.Sprintf("%d %s", count, Pluralize(count, singular, plural))
}
