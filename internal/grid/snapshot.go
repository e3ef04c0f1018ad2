package grid

import "strings"

// Snapshot is an immutable copy of a grid's visible cells and cursor.
type Snapshot struct {
	Cols   int
	Rows   int
	Cells  []Cell
	Cursor Cursor
}

// Snapshot copies the active screen. A cursor in the pending-wrap position
// keeps Col == Cols.
func (g *Grid) Snapshot() Snapshot {
	cells := make([]Cell, len(g.cells))
	copy(cells, g.cells)
	cur := g.cursor
	return Snapshot{Cols: g.cols, Rows: g.rows, Cells: cells, Cursor: cur}
}

// ViewSnapshot copies the screen as seen when scrolled offset rows back
// into the scrollback. Offsets beyond the retained history are clamped and
// the cursor is hidden when it falls off the bottom of the view.
func (g *Grid) ViewSnapshot(offset int) Snapshot {
	offset = clamp(offset, 0, len(g.scrollback))
	if offset == 0 || g.modes.AltScreen {
		return g.Snapshot()
	}

	cells := make([]Cell, 0, g.cols*g.rows)
	history := g.scrollback[len(g.scrollback)-offset:]
	for r := 0; r < g.rows; r++ {
		var line []Cell
		if r < len(history) {
			line = history[r]
		} else {
			start := g.index(r-len(history), 0)
			line = g.cells[start : start+g.cols]
		}
		cells = append(cells, fitRow(line, g.cols)...)
	}

	cur := g.cursor
	cur.Row += offset
	if cur.Row >= g.rows {
		cur.Row = g.rows - 1
		cur.Visible = false
	}
	return Snapshot{Cols: g.cols, Rows: g.rows, Cells: cells, Cursor: cur}
}

// fitRow pads or clips a scrollback row recorded at a different width.
func fitRow(line []Cell, cols int) []Cell {
	if len(line) == cols {
		return line
	}
	out := make([]Cell, cols)
	n := copy(out, line)
	for i := n; i < cols; i++ {
		out[i] = BlankCell()
	}
	return out
}

// Cell returns the cell at (row, col), or a blank cell when out of range.
func (s Snapshot) Cell(row, col int) Cell {
	if row < 0 || row >= s.Rows || col < 0 || col >= s.Cols {
		return BlankCell()
	}
	return s.Cells[row*s.Cols+col]
}

// RowText returns a row's characters with trailing spaces removed.
func (s Snapshot) RowText(row int) string {
	if row < 0 || row >= s.Rows {
		return ""
	}
	return rowText(s.Cells[row*s.Cols : (row+1)*s.Cols])
}

// Text returns every row joined by newlines, trailing blank rows dropped.
func (s Snapshot) Text() string {
	lines := make([]string, s.Rows)
	for r := range lines {
		lines[r] = s.RowText(r)
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	cells := make([]Cell, len(s.Cells))
	copy(cells, s.Cells)
	s.Cells = cells
	return s
}

// FromSnapshot builds a grid showing s, with the cursor at s.Cursor and
// default attributes. A cell slice of the wrong length is clipped or padded
// with blanks. The grid keeps no scrollback. A cursor at Col == Cols stays
// pending wrap, so the next Print starts a new line.
func FromSnapshot(s Snapshot) *Grid {
	g := New(s.Cols, s.Rows)
	g.maxScrollback = 0
	copy(g.cells, s.Cells)
	g.cursor = s.Cursor
	pendingWrap := s.Cursor.Col == s.Cols
	g.clampCursor()
	if pendingWrap {
		g.cursor.Col = g.cols
	}
	return g
}

// CursorCell returns the column the cursor is drawn on, which is the last
// column while a wrap is pending.
func (s Snapshot) CursorCell() int {
	return min(s.Cursor.Col, s.Cols-1)
}
