package grid

import "fmt"

// RGB is a 24-bit color.
type RGB [3]uint8

// Hex returns the color as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// Default colors used when no SGR color is active.
var (
	DefaultFG = RGB{229, 229, 229}
	DefaultBG = RGB{30, 30, 30}
)

// Palette16 holds the base ANSI colors (0-7) followed by their bright variants (8-15).
var Palette16 = [16]RGB{
	{0, 0, 0},
	{205, 49, 49},
	{13, 188, 121},
	{229, 229, 16},
	{36, 114, 200},
	{188, 63, 188},
	{17, 168, 205},
	{229, 229, 229},
	{102, 102, 102},
	{241, 76, 76},
	{35, 209, 139},
	{245, 245, 67},
	{59, 142, 234},
	{214, 112, 214},
	{41, 184, 219},
	{255, 255, 255},
}

// Color256 converts an xterm 256-color index to RGB.
func Color256(idx uint8) RGB {
	switch {
	case idx < 16:
		return Palette16[idx]
	case idx < 232:
		// 6x6x6 color cube
		i := idx - 16
		return RGB{(i / 36) * 51, ((i / 6) % 6) * 51, (i % 6) * 51}
	default:
		gray := (idx-232)*10 + 8
		return RGB{gray, gray, gray}
	}
}
