// Package grid holds the terminal screen model shared by the authoritative
// session and the predictive consumer: cells, cursor, SGR pen and scroll
// region. It performs no I/O. A Grid is owned by exactly one goroutine at a
// time and is not safe for concurrent use.
package grid

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	tabWidth          = 8
	DefaultScrollback = 1000
)

// Cursor is the cursor position. Col may equal the column count while a
// wrap is pending.
type Cursor struct {
	Row     int
	Col     int
	Visible bool
}

// Modes are the DEC private modes the grid tracks.
type Modes struct {
	AutoWrap       bool
	AppCursorKeys  bool
	BracketedPaste bool
	AltScreen      bool
}

type savedCursor struct {
	cursor Cursor
	attrs  Attributes
}

// Grid is a cols x rows screen of cells in row-major order.
type Grid struct {
	cols, rows int
	cells      []Cell
	primary    []Cell // primary screen while the alternate screen is active

	cursor       Cursor
	scrollTop    int
	scrollBottom int
	attrs        Attributes
	modes        Modes

	saved        savedCursor
	savedPrimary savedCursor

	scrollback    [][]Cell
	maxScrollback int
}

// New allocates a blank grid. Dimensions below 1 are raised to 1.
func New(cols, rows int) *Grid {
	cols, rows = clampDims(cols, rows)
	g := &Grid{
		cols:          cols,
		rows:          rows,
		cells:         blankCells(cols*rows, BlankCell()),
		cursor:        Cursor{Visible: true},
		scrollBottom:  rows - 1,
		attrs:         DefaultAttributes(),
		modes:         Modes{AutoWrap: true},
		maxScrollback: DefaultScrollback,
	}
	g.saved = savedCursor{cursor: g.cursor, attrs: g.attrs}
	return g
}

func clampDims(cols, rows int) (int, int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

func blankCells(n int, blank Cell) []Cell {
	cells := make([]Cell, n)
	for i := range cells {
		cells[i] = blank
	}
	return cells
}

func (g *Grid) Cols() int { return g.cols }
func (g *Grid) Rows() int { return g.rows }

// Len returns the number of cells backing the active screen.
func (g *Grid) Len() int { return len(g.cells) }

func (g *Grid) Cursor() Cursor { return g.cursor }

func (g *Grid) SetCursorVisible(visible bool) { g.cursor.Visible = visible }

func (g *Grid) Attributes() Attributes { return g.attrs }

func (g *Grid) SetAttributes(a Attributes) { g.attrs = a }

func (g *Grid) Modes() Modes { return g.modes }

func (g *Grid) SetAutoWrap(on bool) {
	g.modes.AutoWrap = on
	if !on && g.cursor.Col >= g.cols {
		g.cursor.Col = g.cols - 1
	}
}

func (g *Grid) SetAppCursorKeys(on bool)  { g.modes.AppCursorKeys = on }
func (g *Grid) SetBracketedPaste(on bool) { g.modes.BracketedPaste = on }

// ScrollRegion returns the inclusive row bounds of the scroll region.
func (g *Grid) ScrollRegion() (top, bottom int) { return g.scrollTop, g.scrollBottom }

// SetMaxScrollback bounds the number of retained scrollback rows; 0 disables scrollback.
func (g *Grid) SetMaxScrollback(n int) {
	if n < 0 {
		n = 0
	}
	g.maxScrollback = n
	g.trimScrollback()
}

func (g *Grid) ScrollbackLen() int { return len(g.scrollback) }

func (g *Grid) index(row, col int) int { return row*g.cols + col }

func (g *Grid) inBounds(row, col int) bool {
	return row >= 0 && row < g.rows && col >= 0 && col < g.cols
}

// Cell returns the cell at (row, col), or a blank cell when out of range.
func (g *Grid) Cell(row, col int) Cell {
	if !g.inBounds(row, col) {
		return BlankCell()
	}
	return g.cells[g.index(row, col)]
}

// SetCell replaces the cell at (row, col). Out-of-range writes are dropped.
func (g *Grid) SetCell(row, col int, c Cell) {
	if !g.inBounds(row, col) {
		return
	}
	g.cells[g.index(row, col)] = c
}

// RowText returns the characters of a row with trailing spaces removed.
func (g *Grid) RowText(row int) string {
	if row < 0 || row >= g.rows {
		return ""
	}
	return rowText(g.cells[g.index(row, 0):g.index(row, 0)+g.cols])
}

func rowText(cells []Cell) string {
	var b strings.Builder
	for _, c := range cells {
		if c.Char == 0 {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(c.Char)
	}
	return strings.TrimRight(b.String(), " ")
}

// Print writes r at the cursor with the current attributes and advances
// the cursor. A pending wrap is resolved first: the cursor moves to the
// start of the next row, scrolling the region when it sits on the bottom
// margin.
func (g *Grid) Print(r rune) {
	width := runewidth.RuneWidth(r)
	if width == 0 {
		// Combining marks are not composed.
		return
	}
	if width > 2 || g.cols < 2 {
		width = 1
	}

	if g.cursor.Col >= g.cols {
		if g.modes.AutoWrap {
			g.cursor.Col = 0
			g.LineFeed()
		} else {
			g.cursor.Col = g.cols - 1
		}
	}

	if width == 2 && g.cursor.Col == g.cols-1 {
		if g.modes.AutoWrap {
			g.cells[g.index(g.cursor.Row, g.cursor.Col)] = g.attrs.Blank()
			g.cursor.Col = 0
			g.LineFeed()
		} else {
			width = 1
		}
	}

	g.cells[g.index(g.cursor.Row, g.cursor.Col)] = g.attrs.Cell(r)
	if width == 2 {
		g.cells[g.index(g.cursor.Row, g.cursor.Col+1)] = g.attrs.Cell(' ')
	}
	g.cursor.Col += width
	if !g.modes.AutoWrap && g.cursor.Col >= g.cols {
		g.cursor.Col = g.cols - 1
	}
}

// LineFeed moves the cursor down one row, scrolling the region up when the
// cursor is on the bottom margin.
func (g *Grid) LineFeed() {
	switch {
	case g.cursor.Row == g.scrollBottom:
		g.ScrollUp(1)
	case g.cursor.Row < g.rows-1:
		g.cursor.Row++
	}
}

// ReverseIndex moves the cursor up one row, scrolling the region down when
// the cursor is on the top margin.
func (g *Grid) ReverseIndex() {
	switch {
	case g.cursor.Row == g.scrollTop:
		g.ScrollDown(1)
	case g.cursor.Row > 0:
		g.cursor.Row--
	}
}

func (g *Grid) CarriageReturn() { g.cursor.Col = 0 }

func (g *Grid) Backspace() {
	if g.cursor.Col >= g.cols {
		g.cursor.Col = g.cols - 1
	}
	if g.cursor.Col > 0 {
		g.cursor.Col--
	}
}

// Tab advances to the next tab stop, stopping at the last column.
func (g *Grid) Tab(n int) {
	if n < 1 {
		n = 1
	}
	col := min(g.cursor.Col, g.cols-1)
	for i := 0; i < n; i++ {
		col = (col/tabWidth + 1) * tabWidth
	}
	g.cursor.Col = min(col, g.cols-1)
}

// BackTab moves to the previous tab stop.
func (g *Grid) BackTab(n int) {
	if n < 1 {
		n = 1
	}
	col := min(g.cursor.Col, g.cols-1)
	for i := 0; i < n && col > 0; i++ {
		col = ((col - 1) / tabWidth) * tabWidth
	}
	g.cursor.Col = col
}

// ScrollUp shifts the scroll region up by n rows. Rows leaving the top of a
// full-screen region on the primary screen are kept as scrollback.
func (g *Grid) ScrollUp(n int) {
	height := g.scrollBottom - g.scrollTop + 1
	if n < 1 {
		return
	}
	if n > height {
		n = height
	}
	if g.scrollTop == 0 && g.scrollBottom == g.rows-1 && !g.modes.AltScreen && g.maxScrollback > 0 {
		for r := 0; r < n; r++ {
			line := make([]Cell, g.cols)
			copy(line, g.cells[g.index(r, 0):g.index(r, 0)+g.cols])
			g.scrollback = append(g.scrollback, line)
		}
		g.trimScrollback()
	}
	start := g.index(g.scrollTop, 0)
	end := g.index(g.scrollBottom+1, 0)
	copy(g.cells[start:end], g.cells[start+n*g.cols:end])
	g.fillRows(g.scrollBottom-n+1, g.scrollBottom)
}

// ScrollDown shifts the scroll region down by n rows.
func (g *Grid) ScrollDown(n int) {
	height := g.scrollBottom - g.scrollTop + 1
	if n < 1 {
		return
	}
	if n > height {
		n = height
	}
	start := g.index(g.scrollTop, 0)
	end := g.index(g.scrollBottom+1, 0)
	copy(g.cells[start+n*g.cols:end], g.cells[start:end-n*g.cols])
	g.fillRows(g.scrollTop, g.scrollTop+n-1)
}

func (g *Grid) trimScrollback() {
	if over := len(g.scrollback) - g.maxScrollback; over > 0 {
		g.scrollback = append(g.scrollback[:0:0], g.scrollback[over:]...)
	}
}

// fillRows blanks rows [from, to] inclusive with the current background.
func (g *Grid) fillRows(from, to int) {
	blank := g.attrs.Blank()
	for i := g.index(from, 0); i < g.index(to+1, 0); i++ {
		g.cells[i] = blank
	}
}

func (g *Grid) fillRange(row, fromCol, toCol int) {
	blank := g.attrs.Blank()
	fromCol = max(fromCol, 0)
	toCol = min(toCol, g.cols-1)
	for col := fromCol; col <= toCol; col++ {
		g.cells[g.index(row, col)] = blank
	}
}

// MoveTo places the cursor at (row, col), clamped to the grid.
func (g *Grid) MoveTo(row, col int) {
	g.cursor.Row = clamp(row, 0, g.rows-1)
	g.cursor.Col = clamp(col, 0, g.cols-1)
}

// MoveBy moves the cursor relative to its position, clamped to the grid.
func (g *Grid) MoveBy(dRow, dCol int) {
	g.MoveTo(g.cursor.Row+dRow, min(g.cursor.Col, g.cols-1)+dCol)
}

func (g *Grid) SetCol(col int) { g.MoveTo(g.cursor.Row, col) }
func (g *Grid) SetRow(row int) { g.MoveTo(row, g.cursor.Col) }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EraseDisplay implements ED: 0 cursor to end, 1 start to cursor, 2 whole
// screen, 3 whole screen and scrollback.
func (g *Grid) EraseDisplay(mode int) {
	col := min(g.cursor.Col, g.cols-1)
	switch mode {
	case 0:
		g.fillRange(g.cursor.Row, col, g.cols-1)
		if g.cursor.Row+1 < g.rows {
			g.fillRows(g.cursor.Row+1, g.rows-1)
		}
	case 1:
		if g.cursor.Row > 0 {
			g.fillRows(0, g.cursor.Row-1)
		}
		g.fillRange(g.cursor.Row, 0, col)
	case 2:
		g.fillRows(0, g.rows-1)
	case 3:
		g.fillRows(0, g.rows-1)
		g.scrollback = nil
	}
}

// EraseLine implements EL: 0 cursor to end, 1 start to cursor, 2 whole line.
func (g *Grid) EraseLine(mode int) {
	col := min(g.cursor.Col, g.cols-1)
	switch mode {
	case 0:
		g.fillRange(g.cursor.Row, col, g.cols-1)
	case 1:
		g.fillRange(g.cursor.Row, 0, col)
	case 2:
		g.fillRange(g.cursor.Row, 0, g.cols-1)
	}
}

// EraseChars blanks n cells from the cursor without moving it.
func (g *Grid) EraseChars(n int) {
	col := min(g.cursor.Col, g.cols-1)
	g.fillRange(g.cursor.Row, col, col+max(n, 1)-1)
}

// InsertChars shifts the rest of the row right by n blank cells.
func (g *Grid) InsertChars(n int) {
	col := min(g.cursor.Col, g.cols-1)
	n = clamp(n, 1, g.cols-col)
	row := g.cells[g.index(g.cursor.Row, 0) : g.index(g.cursor.Row, 0)+g.cols]
	copy(row[col+n:], row[col:g.cols-n])
	g.fillRange(g.cursor.Row, col, col+n-1)
}

// DeleteChars removes n cells at the cursor, shifting the rest of the row left.
func (g *Grid) DeleteChars(n int) {
	col := min(g.cursor.Col, g.cols-1)
	n = clamp(n, 1, g.cols-col)
	row := g.cells[g.index(g.cursor.Row, 0) : g.index(g.cursor.Row, 0)+g.cols]
	copy(row[col:], row[col+n:])
	g.fillRange(g.cursor.Row, g.cols-n, g.cols-1)
}

// InsertLines inserts n blank rows at the cursor inside the scroll region.
func (g *Grid) InsertLines(n int) {
	if g.cursor.Row < g.scrollTop || g.cursor.Row > g.scrollBottom {
		return
	}
	top := g.scrollTop
	g.scrollTop = g.cursor.Row
	g.ScrollDown(n)
	g.scrollTop = top
	g.cursor.Col = 0
}

// DeleteLines removes n rows at the cursor inside the scroll region.
func (g *Grid) DeleteLines(n int) {
	if g.cursor.Row < g.scrollTop || g.cursor.Row > g.scrollBottom {
		return
	}
	top := g.scrollTop
	g.scrollTop = g.cursor.Row
	// Lines deleted mid-screen never feed scrollback.
	maxSB := g.maxScrollback
	g.maxScrollback = 0
	g.ScrollUp(n)
	g.maxScrollback = maxSB
	g.scrollTop = top
	g.cursor.Col = 0
}

// SetScrollRegion sets the inclusive scroll margins and homes the cursor.
// Regions smaller than two rows are ignored.
func (g *Grid) SetScrollRegion(top, bottom int) {
	top = clamp(top, 0, g.rows-1)
	bottom = clamp(bottom, 0, g.rows-1)
	if top >= bottom {
		return
	}
	g.scrollTop = top
	g.scrollBottom = bottom
	g.MoveTo(0, 0)
}

func (g *Grid) ResetScrollRegion() {
	g.scrollTop = 0
	g.scrollBottom = g.rows - 1
}

// SaveCursor stores the cursor position and pen (DECSC).
func (g *Grid) SaveCursor() {
	g.saved = savedCursor{cursor: g.cursor, attrs: g.attrs}
}

// RestoreCursor restores the state stored by SaveCursor (DECRC).
func (g *Grid) RestoreCursor() {
	visible := g.cursor.Visible
	g.cursor = g.saved.cursor
	g.cursor.Visible = visible
	g.attrs = g.saved.attrs
	g.clampCursor()
}

// EnterAltScreen switches to a cleared alternate screen. When saveCursor is
// set the cursor is stored first (mode 1049).
func (g *Grid) EnterAltScreen(saveCursor bool) {
	if g.modes.AltScreen {
		return
	}
	if saveCursor {
		g.savedPrimary = savedCursor{cursor: g.cursor, attrs: g.attrs}
	}
	g.primary = g.cells
	g.cells = blankCells(g.cols*g.rows, g.attrs.Blank())
	g.modes.AltScreen = true
	g.ResetScrollRegion()
}

// ExitAltScreen returns to the primary screen, optionally restoring the
// cursor saved on entry.
func (g *Grid) ExitAltScreen(restoreCursor bool) {
	if !g.modes.AltScreen {
		return
	}
	g.cells = g.primary
	g.primary = nil
	g.modes.AltScreen = false
	g.ResetScrollRegion()
	if restoreCursor {
		visible := g.cursor.Visible
		g.cursor = g.savedPrimary.cursor
		g.cursor.Visible = visible
		g.attrs = g.savedPrimary.attrs
		g.clampCursor()
	}
}

// Reset returns the grid to its power-on state (RIS), keeping dimensions.
func (g *Grid) Reset() {
	maxSB := g.maxScrollback
	*g = *New(g.cols, g.rows)
	g.maxScrollback = maxSB
}

// Resize reallocates the grid to cols x rows. Content is top-left anchored:
// rows and columns outside the new bounds are discarded, new space is blank.
// The cursor is clamped and the scroll region reset.
func (g *Grid) Resize(cols, rows int) {
	cols, rows = clampDims(cols, rows)
	if cols == g.cols && rows == g.rows {
		return
	}
	g.cells = resizeCells(g.cells, g.cols, g.rows, cols, rows)
	if g.primary != nil {
		g.primary = resizeCells(g.primary, g.cols, g.rows, cols, rows)
	}
	g.cols, g.rows = cols, rows
	g.ResetScrollRegion()
	g.clampCursor()
	g.saved.cursor.Row = clamp(g.saved.cursor.Row, 0, rows-1)
	g.saved.cursor.Col = clamp(g.saved.cursor.Col, 0, cols-1)
	g.savedPrimary.cursor.Row = clamp(g.savedPrimary.cursor.Row, 0, rows-1)
	g.savedPrimary.cursor.Col = clamp(g.savedPrimary.cursor.Col, 0, cols-1)
}

func (g *Grid) clampCursor() {
	g.cursor.Row = clamp(g.cursor.Row, 0, g.rows-1)
	g.cursor.Col = clamp(g.cursor.Col, 0, g.cols-1)
}

func resizeCells(old []Cell, oldCols, oldRows, cols, rows int) []Cell {
	cells := blankCells(cols*rows, BlankCell())
	copyCols := min(oldCols, cols)
	for r := 0; r < min(oldRows, rows); r++ {
		copy(cells[r*cols:r*cols+copyCols], old[r*oldCols:r*oldCols+copyCols])
	}
	return cells
}
