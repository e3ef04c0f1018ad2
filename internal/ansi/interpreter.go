package ansi

import (
	"fmt"
	"strings"

	"github.com/noirtty/noirtty/internal/grid"
	"github.com/rs/zerolog"
)

// Replies to device attribute queries.
const (
	primaryDA   = "\x1b[?1;2c"
	secondaryDA = "\x1b[>0;10;1c"
	statusOK    = "\x1b[0n"
)

// Interpreter applies terminal output to a grid. It implements io.Writer
// and Performer; sequences it does not support are ignored.
type Interpreter struct {
	parser *Parser
	grid   *grid.Grid
	log    zerolog.Logger

	responses []byte
	title     string
	onTitle   func(string)
}

// NewInterpreter returns an interpreter that mutates g.
func NewInterpreter(g *grid.Grid) *Interpreter {
	return &Interpreter{
		parser: NewParser(),
		grid:   g,
		log:    zerolog.Nop(),
	}
}

// SetLogger sets the logger used to trace unsupported sequences.
func (in *Interpreter) SetLogger(l zerolog.Logger) { in.log = l }

// OnTitle registers a callback invoked when the window title changes.
func (in *Interpreter) OnTitle(fn func(string)) { in.onTitle = fn }

func (in *Interpreter) Grid() *grid.Grid { return in.grid }

func (in *Interpreter) Title() string { return in.title }

// Write feeds shell output through the parser. It never fails.
func (in *Interpreter) Write(p []byte) (int, error) {
	in.parser.Advance(in, p)
	return len(p), nil
}

// TakeResponses returns and clears the bytes queued for the application,
// such as cursor position reports.
func (in *Interpreter) TakeResponses() []byte {
	if len(in.responses) == 0 {
		return nil
	}
	out := in.responses
	in.responses = nil
	return out
}

func (in *Interpreter) Print(r rune) {
	in.grid.Print(r)
}

func (in *Interpreter) Execute(b byte) {
	g := in.grid
	switch b {
	case 0x08:
		g.Backspace()
	case 0x09:
		g.Tab(1)
	case 0x0A, 0x0B, 0x0C:
		g.LineFeed()
	case 0x0D:
		g.CarriageReturn()
	}
}

func (in *Interpreter) CSIDispatch(params Params, intermediates []byte, final byte) {
	if len(intermediates) > 0 {
		in.csiPrefixed(params, intermediates, final)
		return
	}

	g := in.grid
	n := params.Get(0, 1)
	switch final {
	case '@':
		g.InsertChars(n)
	case 'A':
		g.MoveBy(-n, 0)
	case 'B', 'e':
		g.MoveBy(n, 0)
	case 'C', 'a':
		g.MoveBy(0, n)
	case 'D':
		g.MoveBy(0, -n)
	case 'E':
		g.MoveBy(n, 0)
		g.CarriageReturn()
	case 'F':
		g.MoveBy(-n, 0)
		g.CarriageReturn()
	case 'G', '`':
		g.SetCol(n - 1)
	case 'H', 'f':
		g.MoveTo(params.Get(0, 1)-1, params.Get(1, 1)-1)
	case 'I':
		g.Tab(n)
	case 'Z':
		g.BackTab(n)
	case 'J':
		g.EraseDisplay(params.Raw(0))
	case 'K':
		g.EraseLine(params.Raw(0))
	case 'L':
		g.InsertLines(n)
	case 'M':
		g.DeleteLines(n)
	case 'P':
		g.DeleteChars(n)
	case 'S':
		g.ScrollUp(n)
	case 'T':
		g.ScrollDown(n)
	case 'X':
		g.EraseChars(n)
	case 'd':
		g.SetRow(n - 1)
	case 'm':
		in.sgr(params)
	case 'n':
		in.deviceStatus(params.Raw(0))
	case 'c':
		if params.Raw(0) == 0 {
			in.responses = append(in.responses, primaryDA...)
		}
	case 'r':
		g.SetScrollRegion(params.Get(0, 1)-1, params.Get(1, g.Rows())-1)
	case 's':
		g.SaveCursor()
	case 'u':
		g.RestoreCursor()
	case 'h', 'l':
		// ANSI modes (IRM, LNM) are not supported.
	default:
		in.log.Trace().Str("final", string(final)).Interface("params", params).Msg("unhandled CSI")
	}
}

func (in *Interpreter) csiPrefixed(params Params, intermediates []byte, final byte) {
	switch {
	case intermediates[0] == '?' && (final == 'h' || final == 'l'):
		for _, group := range params {
			in.privateMode(group[0], final == 'h')
		}
	case intermediates[0] == '>' && final == 'c':
		in.responses = append(in.responses, secondaryDA...)
	default:
		in.log.Trace().Str("intermediates", string(intermediates)).Str("final", string(final)).Msg("unhandled CSI")
	}
}

func (in *Interpreter) privateMode(mode int, set bool) {
	g := in.grid
	switch mode {
	case 1:
		g.SetAppCursorKeys(set)
	case 7:
		g.SetAutoWrap(set)
	case 25:
		g.SetCursorVisible(set)
	case 47, 1047:
		if set {
			g.EnterAltScreen(false)
		} else {
			g.ExitAltScreen(false)
		}
	case 1048:
		if set {
			g.SaveCursor()
		} else {
			g.RestoreCursor()
		}
	case 1049:
		if set {
			g.EnterAltScreen(true)
		} else {
			g.ExitAltScreen(true)
		}
	case 2004:
		g.SetBracketedPaste(set)
	}
}

func (in *Interpreter) deviceStatus(code int) {
	switch code {
	case 5:
		in.responses = append(in.responses, statusOK...)
	case 6:
		cur := in.grid.Cursor()
		col := min(cur.Col, in.grid.Cols()-1)
		in.responses = append(in.responses, fmt.Sprintf("\x1b[%d;%dR", cur.Row+1, col+1)...)
	}
}

func (in *Interpreter) sgr(params Params) {
	a := in.grid.Attributes()
	if len(params) == 0 {
		in.grid.SetAttributes(grid.DefaultAttributes())
		return
	}

	for i := 0; i < len(params); i++ {
		group := params[i]
		switch code := group[0]; {
		case code == 0:
			a = grid.DefaultAttributes()
		case code == 1:
			a.Bold = true
		case code == 3:
			a.Italic = true
		case code == 4:
			a.Underline = true
		case code == 7:
			a.Inverse = true
		case code == 22:
			a.Bold = false
		case code == 23:
			a.Italic = false
		case code == 24:
			a.Underline = false
		case code == 27:
			a.Inverse = false
		case code >= 30 && code <= 37:
			a.FG = grid.Palette16[code-30]
		case code == 39:
			a.FG = grid.DefaultFG
		case code >= 40 && code <= 47:
			a.BG = grid.Palette16[code-40]
		case code == 49:
			a.BG = grid.DefaultBG
		case code >= 90 && code <= 97:
			a.FG = grid.Palette16[code-90+8]
		case code >= 100 && code <= 107:
			a.BG = grid.Palette16[code-100+8]
		case code == 38 || code == 48:
			var c grid.RGB
			var ok bool
			if len(group) > 1 {
				c, ok = extendedColor(group[1:])
			} else {
				var used int
				c, used, ok = extendedColorParams(params[i+1:])
				i += used
			}
			if !ok {
				continue
			}
			if code == 38 {
				a.FG = c
			} else {
				a.BG = c
			}
		}
	}
	in.grid.SetAttributes(a)
}

// extendedColor decodes the colon form: 5:n, 2:r:g:b or 2:cs:r:g:b.
func extendedColor(sub []int) (grid.RGB, bool) {
	switch {
	case sub[0] == 5 && len(sub) >= 2:
		return color256(sub[1])
	case sub[0] == 2 && len(sub) >= 5:
		return rgb(sub[2], sub[3], sub[4]), true
	case sub[0] == 2 && len(sub) == 4:
		return rgb(sub[1], sub[2], sub[3]), true
	}
	return grid.RGB{}, false
}

// extendedColorParams decodes the semicolon form and reports how many
// parameters it consumed.
func extendedColorParams(rest Params) (grid.RGB, int, bool) {
	switch {
	case rest.Raw(0) == 5 && len(rest) >= 2:
		c, ok := color256(rest.Raw(1))
		return c, 2, ok
	case rest.Raw(0) == 2 && len(rest) >= 4:
		return rgb(rest.Raw(1), rest.Raw(2), rest.Raw(3)), 4, true
	}
	return grid.RGB{}, 0, false
}

// color256 rejects indexes outside the palette.
func color256(n int) (grid.RGB, bool) {
	if n < 0 || n > 255 {
		return grid.RGB{}, false
	}
	return grid.Color256(uint8(n)), true
}

func rgb(r, g, b int) grid.RGB {
	return grid.RGB{uint8(min(r, 255)), uint8(min(g, 255)), uint8(min(b, 255))}
}

func (in *Interpreter) OSCDispatch(params [][]byte, bellTerminated bool) {
	if len(params) < 2 {
		return
	}
	switch string(params[0]) {
	case "0", "2":
		parts := make([]string, 0, len(params)-1)
		for _, p := range params[1:] {
			parts = append(parts, string(p))
		}
		in.title = strings.ToValidUTF8(strings.Join(parts, ";"), "�")
		if in.onTitle != nil {
			in.onTitle(in.title)
		}
	}
}

func (in *Interpreter) ESCDispatch(intermediates []byte, final byte) {
	if len(intermediates) > 0 {
		// Charset designation and DEC line attributes are not supported.
		return
	}
	g := in.grid
	switch final {
	case '7':
		g.SaveCursor()
	case '8':
		g.RestoreCursor()
	case 'c':
		g.Reset()
		in.responses = nil
	case 'D':
		g.LineFeed()
	case 'E':
		g.CarriageReturn()
		g.LineFeed()
	case 'M':
		g.ReverseIndex()
	}
}
