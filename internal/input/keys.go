// Package input turns key events into the bytes a terminal application
// expects on its input.
package input

import (
	"fmt"
	"unicode/utf8"
)

// KeyEvent describes one key press. Code names the physical key
// ("ArrowUp", "Enter", "KeyA", "F5"); Key is the character it produced, if
// any.
type KeyEvent struct {
	Code  string
	Key   string
	Ctrl  bool
	Alt   bool
	Meta  bool
	Shift bool
}

var functionKeys = map[string]string{
	"F1":  "\x1bOP",
	"F2":  "\x1bOQ",
	"F3":  "\x1bOR",
	"F4":  "\x1bOS",
	"F5":  "\x1b[15~",
	"F6":  "\x1b[17~",
	"F7":  "\x1b[18~",
	"F8":  "\x1b[19~",
	"F9":  "\x1b[20~",
	"F10": "\x1b[21~",
	"F11": "\x1b[23~",
	"F12": "\x1b[24~",
}

var editingKeys = map[string]string{
	"PageUp":   "\x1b[5~",
	"PageDown": "\x1b[6~",
	"Insert":   "\x1b[2~",
	"Delete":   "\x1b[3~",
}

var cursorKeys = map[string]byte{
	"ArrowUp":    'A',
	"ArrowDown":  'B',
	"ArrowRight": 'C',
	"ArrowLeft":  'D',
}

// Encode returns the bytes for ev, or false when the key produces nothing.
// appCursor selects application cursor key sequences (DECCKM).
func Encode(ev KeyEvent, appCursor bool) ([]byte, bool) {
	if ev.Ctrl && !ev.Alt && !ev.Meta {
		if c, ok := ctrlChar(ev.Key); ok {
			return []byte{c}, true
		}
	}

	if dir, ok := cursorKeys[ev.Code]; ok {
		mod := modifier(ev)
		switch {
		case mod > 0:
			return fmt.Appendf(nil, "\x1b[1;%d%c", mod, dir), true
		case appCursor:
			return []byte{0x1b, 'O', dir}, true
		default:
			return []byte{0x1b, '[', dir}, true
		}
	}

	switch ev.Code {
	case "Home", "End":
		final := byte('H')
		if ev.Code == "End" {
			final = 'F'
		}
		if mod := modifier(ev); mod > 0 {
			return fmt.Appendf(nil, "\x1b[1;%d%c", mod, final), true
		}
		return []byte{0x1b, '[', final}, true
	case "Enter", "NumpadEnter":
		return []byte{'\r'}, true
	case "Backspace":
		if ev.Ctrl {
			return []byte{0x08}, true
		}
		return []byte{0x7f}, true
	case "Tab":
		if ev.Shift {
			return []byte("\x1b[Z"), true
		}
		return []byte{'\t'}, true
	case "Escape":
		return []byte{0x1b}, true
	}
	if seq, ok := editingKeys[ev.Code]; ok {
		return []byte(seq), true
	}
	if seq, ok := functionKeys[ev.Code]; ok {
		return []byte(seq), true
	}

	if utf8.RuneCountInString(ev.Key) == 1 && !ev.Ctrl && !ev.Meta {
		if ev.Alt {
			return append([]byte{0x1b}, ev.Key...), true
		}
		return []byte(ev.Key), true
	}
	return nil, false
}

// ctrlChar maps a key pressed with Ctrl to its C0 control character.
func ctrlChar(key string) (byte, bool) {
	if len(key) != 1 {
		return 0, false
	}
	c := key[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	switch {
	case c >= 'A' && c <= 'Z':
		return c - 'A' + 1, true
	case c == '@', c == ' ', c == '2':
		return 0x00, true
	case c == '[':
		return 0x1b, true
	case c == '\\':
		return 0x1c, true
	case c == ']':
		return 0x1d, true
	case c == '^':
		return 0x1e, true
	case c == '_':
		return 0x1f, true
	case c == '?':
		return 0x7f, true
	}
	return 0, false
}

// modifier is the xterm modifier parameter for ev, or 0 when no modifier
// applies.
func modifier(ev KeyEvent) int {
	m := 1
	if ev.Shift {
		m++
	}
	if ev.Alt {
		m += 2
	}
	if ev.Ctrl {
		m += 4
	}
	if m == 1 {
		return 0
	}
	return m
}
