// Package table lays out a logical grid of text cells on a single surface.
//
// Column widths come from Table.ColumnWidths with a per-column fallback,
// every row has the same fixed height, and the engine never measures text
// to size rows. Pagination is left to the caller: Draw only ever touches
// the surface it is given.
package table

import (
	"github.com/wudi/pdfcompose/graphics"
)

const (
	// DefaultColumnWidth is used for every column without an explicit width.
	DefaultColumnWidth = 100.0

	// DefaultRowHeight is the row height used when no option overrides it.
	DefaultRowHeight = 20.0

	// DefaultCellPadding is the padding of DefaultStyle.
	DefaultCellPadding = 5.0
)

// Table is an ordered list of rows, the column widths and one style.
// Rows may have different numbers of cells.
type Table struct {
	Rows         []Row
	ColumnWidths []float64
	Style        Style
}

// Row is an ordered list of cells with an optional text style override.
type Row struct {
	Cells []Cell
	Style *graphics.TextStyle
}

// Cell is a single text cell. ColSpan and RowSpan values below 1 are
// treated as 1.
type Cell struct {
	Text    string
	Style   *graphics.TextStyle
	ColSpan int
	RowSpan int
}

// Style configures borders, padding, background and the default cell text.
type Style struct {
	BorderWidth float64
	BorderColor graphics.Color
	CellPadding float64
	Background  *graphics.Color
	TextStyle   graphics.TextStyle
	ShowBorders bool
}

// DefaultStyle returns a bordered style with 1pt black borders, 5pt padding
// and the default text style.
func DefaultStyle() Style {
	return Style{
		BorderWidth: 1,
		BorderColor: graphics.Black,
		CellPadding: DefaultCellPadding,
		TextStyle:   graphics.DefaultTextStyle(),
		ShowBorders: true,
	}
}

// New returns an empty table with DefaultStyle and the given column widths.
func New(columnWidths ...float64) *Table {
	return &Table{ColumnWidths: columnWidths, Style: DefaultStyle()}
}

// FromStrings builds a table with one plain cell per string.
func FromStrings(rows [][]string, columnWidths []float64) *Table {
	t := New(columnWidths...)
	for _, r := range rows {
		t.AddRow(r...)
	}
	return t
}

// AddRow appends a row of plain text cells.
func (t *Table) AddRow(texts ...string) *Table {
	row := Row{Cells: make([]Cell, len(texts))}
	for i, s := range texts {
		row.Cells[i] = Cell{Text: s}
	}
	t.Rows = append(t.Rows, row)
	return t
}

// AddStyledRow appends a row whose cells use style unless they override it.
func (t *Table) AddStyledRow(style graphics.TextStyle, texts ...string) *Table {
	t.AddRow(texts...)
	t.Rows[len(t.Rows)-1].Style = &style
	return t
}

// Slice returns a table holding rows [from, to) that shares the column
// widths and style of t. Bounds are clamped to the row count.
func (t *Table) Slice(from, to int) *Table {
	if from < 0 {
		from = 0
	}
	if to > len(t.Rows) {
		to = len(t.Rows)
	}
	if from > to {
		from = to
	}
	return &Table{
		Rows:         t.Rows[from:to:to],
		ColumnWidths: t.ColumnWidths,
		Style:        t.Style,
	}
}

// Span returns the effective column span of c.
func (c Cell) Span() int {
	if c.ColSpan < 1 {
		return 1
	}
	return c.ColSpan
}

// VerticalSpan returns the effective row span of c.
func (c Cell) VerticalSpan() int {
	if c.RowSpan < 1 {
		return 1
	}
	return c.RowSpan
}

// resolveStyle applies cell > row > table priority.
func (t *Table) resolveStyle(row Row, cell Cell) graphics.TextStyle {
	switch {
	case cell.Style != nil:
		return cell.Style.Normalized()
	case row.Style != nil:
		return row.Style.Normalized()
	default:
		return t.Style.TextStyle.Normalized()
	}
}
