// Package reconcile keeps the client's view of a remote terminal. It shows
// locally predicted keystrokes immediately and replaces the whole view with
// each newer authoritative frame, which also discards any misprediction.
package reconcile

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/noirtty/noirtty/internal/grid"
	"github.com/noirtty/noirtty/internal/protocol"
)

// Point is a cell position.
type Point struct {
	Row, Col int
}

func (p Point) before(q Point) bool {
	return p.Row < q.Row || (p.Row == q.Row && p.Col < q.Col)
}

// Engine is not safe for concurrent use; the viewer drives it from its
// update loop.
type Engine struct {
	grid        *grid.Grid
	appCursor   bool
	lastApplied uint64
	applied     bool
	dirty       bool

	selStart  Point
	selEnd    Point
	hasSel    bool
	selecting bool
}

// New returns an engine showing a blank cols x rows screen.
func New(cols, rows int) *Engine {
	g := grid.New(cols, rows)
	g.SetMaxScrollback(0)
	return &Engine{grid: g, dirty: true}
}

// HandleInput predicts the effect of msg on the screen. Only a key that
// types a single printable rune of width one is predicted; it is drawn at
// the cursor with the attributes of the cell to its left and the cursor
// advances with the usual wrap and scroll rules. It reports whether the
// view changed.
func (e *Engine) HandleInput(msg protocol.Message) bool {
	key, ok := msg.(*protocol.Key)
	if !ok {
		return false
	}
	r, size := utf8.DecodeRune(key.Data)
	if r == utf8.RuneError || size != len(key.Data) {
		return false
	}
	if !unicode.IsPrint(r) || runewidth.RuneWidth(r) != 1 {
		return false
	}

	e.grid.SetAttributes(e.attributesBeforeCursor())
	e.grid.Print(r)
	e.dirty = true
	return true
}

func (e *Engine) attributesBeforeCursor() grid.Attributes {
	cur := e.grid.Cursor()
	if cur.Col == 0 {
		return grid.DefaultAttributes()
	}
	col := min(cur.Col, e.grid.Cols()) - 1
	return grid.AttributesOf(e.grid.Cell(cur.Row, col))
}

// ApplyFrame replaces the view with f when f is newer than the last
// applied frame. The first frame always applies. It reports whether f was
// applied.
func (e *Engine) ApplyFrame(f *protocol.Frame) bool {
	if f == nil || (e.applied && f.Sequence <= e.lastApplied) {
		return false
	}
	sizeChanged := f.Cols != e.grid.Cols() || f.Rows != e.grid.Rows()

	e.grid = grid.FromSnapshot(f.Snapshot())
	e.appCursor = f.AppCursorKeys
	e.lastApplied = f.Sequence
	e.applied = true
	e.dirty = true
	if sizeChanged {
		e.ClearSelection()
	}
	return true
}

// CurrentGrid returns a copy of the view with cursor and selection flags
// set on the affected cells.
func (e *Engine) CurrentGrid() grid.Snapshot {
	s := e.grid.Snapshot()
	if s.Cursor.Visible {
		s.Cells[s.Cursor.Row*s.Cols+s.CursorCell()].IsCursor = true
	}
	if e.hasSel {
		start, end := e.selectionRange()
		for row := start.Row; row <= end.Row; row++ {
			from, to := 0, s.Cols-1
			if row == start.Row {
				from = start.Col
			}
			if row == end.Row {
				to = end.Col
			}
			for col := from; col <= to; col++ {
				s.Cells[row*s.Cols+col].IsSelected = true
			}
		}
	}
	return s
}

func (e *Engine) Dirty() bool         { return e.dirty }
func (e *Engine) MarkClean()          { e.dirty = false }
func (e *Engine) LastApplied() uint64 { return e.lastApplied }
func (e *Engine) Cols() int           { return e.grid.Cols() }
func (e *Engine) Rows() int           { return e.grid.Rows() }

// AppCursorKeys reports whether the remote application asked for
// application cursor key sequences.
func (e *Engine) AppCursorKeys() bool { return e.appCursor }

// Resize changes the local view ahead of the server's next frame.
func (e *Engine) Resize(cols, rows int) {
	if cols == e.grid.Cols() && rows == e.grid.Rows() {
		return
	}
	e.grid.Resize(cols, rows)
	e.ClearSelection()
	e.dirty = true
}

// StartSelection anchors a selection at (row, col). Positions outside the
// view are ignored.
func (e *Engine) StartSelection(row, col int) {
	if row < 0 || col < 0 || row >= e.grid.Rows() || col >= e.grid.Cols() {
		return
	}
	p := Point{Row: row, Col: col}
	e.selStart, e.selEnd = p, p
	e.hasSel = true
	e.selecting = true
	e.dirty = true
}

// UpdateSelection moves the free end of an active selection, clamped to
// the view.
func (e *Engine) UpdateSelection(row, col int) {
	if !e.selecting {
		return
	}
	p := Point{
		Row: max(0, min(row, e.grid.Rows()-1)),
		Col: max(0, min(col, e.grid.Cols()-1)),
	}
	if p != e.selEnd {
		e.selEnd = p
		e.dirty = true
	}
}

// EndSelection stops extending the selection and keeps it visible.
func (e *Engine) EndSelection() { e.selecting = false }

func (e *Engine) ClearSelection() {
	if !e.hasSel {
		return
	}
	e.hasSel = false
	e.selecting = false
	e.dirty = true
}

// Selecting reports whether a selection is being extended.
func (e *Engine) Selecting() bool { return e.selecting }

func (e *Engine) selectionRange() (Point, Point) {
	if e.selEnd.before(e.selStart) {
		return e.selEnd, e.selStart
	}
	return e.selStart, e.selEnd
}

// SelectionText returns the selected characters, rows joined by newlines
// with trailing blanks removed. It is empty without a selection.
func (e *Engine) SelectionText() string {
	if !e.hasSel {
		return ""
	}
	start, end := e.selectionRange()
	var lines []string
	for row := start.Row; row <= end.Row; row++ {
		from, to := 0, e.grid.Cols()-1
		if row == start.Row {
			from = start.Col
		}
		if row == end.Row {
			to = end.Col
		}
		var b strings.Builder
		for col := from; col <= to; col++ {
			b.WriteRune(e.grid.Cell(row, col).Char)
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	return strings.Join(lines, "\n")
}
