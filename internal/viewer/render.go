package viewer

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/noirtty/noirtty/internal/grid"
)

var statusStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#E5E5E5")).
	Background(lipgloss.Color("#8B0000")).
	Bold(true)

type cellStyle struct {
	fg, bg    grid.RGB
	bold      bool
	italic    bool
	underline bool
	reverse   bool
}

func styleOf(c grid.Cell) cellStyle {
	// Cursor and selection are drawn by swapping colours.
	return cellStyle{
		fg:        c.FG,
		bg:        c.BG,
		bold:      c.Bold,
		italic:    c.Italic,
		underline: c.Underline,
		reverse:   c.IsCursor != c.IsSelected,
	}
}

func (s cellStyle) lipgloss() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.fg.Hex())).
		Background(lipgloss.Color(s.bg.Hex())).
		Bold(s.bold).
		Italic(s.italic).
		Underline(s.underline).
		Reverse(s.reverse)
}

// Render draws a snapshot as styled text, one line per row. Adjacent cells
// with the same style are rendered together.
func Render(s grid.Snapshot) string {
	var out strings.Builder
	var run strings.Builder
	for row := 0; row < s.Rows; row++ {
		if row > 0 {
			out.WriteByte('\n')
		}
		var cur cellStyle
		wide := false
		for col := 0; col < s.Cols; col++ {
			c := s.Cell(row, col)
			if wide {
				// spacer half of a double-width glyph
				wide = false
				continue
			}
			st := styleOf(c)
			if col > 0 && st != cur {
				out.WriteString(cur.lipgloss().Render(run.String()))
				run.Reset()
			}
			cur = st
			ch := c.Char
			if ch == 0 {
				ch = ' '
			}
			run.WriteRune(ch)
			wide = runewidth.RuneWidth(ch) == 2 && col < s.Cols-1
		}
		out.WriteString(cur.lipgloss().Render(run.String()))
		run.Reset()
	}
	return out.String()
}
