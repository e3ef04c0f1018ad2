package grid

// Cell is one character position on the screen. Cells are values and are
// replaced wholesale on write.
type Cell struct {
	Char      rune
	FG        RGB
	BG        RGB
	Bold      bool
	Italic    bool
	Underline bool
	Inverse   bool

	// Render-time flags, only set on snapshots handed to a renderer.
	IsCursor   bool
	IsSelected bool
}

// BlankCell returns an empty cell with default colors.
func BlankCell() Cell {
	return Cell{Char: ' ', FG: DefaultFG, BG: DefaultBG}
}

// Attributes is the SGR pen applied to the next printed character.
type Attributes struct {
	FG        RGB
	BG        RGB
	Bold      bool
	Italic    bool
	Underline bool
	Inverse   bool
}

// DefaultAttributes returns the pen after an SGR reset.
func DefaultAttributes() Attributes {
	return Attributes{FG: DefaultFG, BG: DefaultBG}
}

// Cell builds the cell that printing r with these attributes produces.
// Inverse video is resolved here so renderers can draw FG/BG as stored.
func (a Attributes) Cell(r rune) Cell {
	fg, bg := a.FG, a.BG
	if a.Inverse {
		fg, bg = bg, fg
	}
	return Cell{
		Char:      r,
		FG:        fg,
		BG:        bg,
		Bold:      a.Bold,
		Italic:    a.Italic,
		Underline: a.Underline,
		Inverse:   a.Inverse,
	}
}

// Blank returns the cell used by erase and scroll operations: a space
// carrying the current background.
func (a Attributes) Blank() Cell {
	return Cell{Char: ' ', FG: DefaultFG, BG: a.BG}
}

// AttributesOf recovers the pen that produced c.
func AttributesOf(c Cell) Attributes {
	fg, bg := c.FG, c.BG
	if c.Inverse {
		fg, bg = bg, fg
	}
	return Attributes{
		FG:        fg,
		BG:        bg,
		Bold:      c.Bold,
		Italic:    c.Italic,
		Underline: c.Underline,
		Inverse:   c.Inverse,
	}
}
