package viewer

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/noirtty/noirtty/internal/input"
)

var namedKeys = map[tea.KeyType]input.KeyEvent{
	tea.KeyEnter:     {Code: "Enter"},
	tea.KeyTab:       {Code: "Tab"},
	tea.KeyShiftTab:  {Code: "Tab", Shift: true},
	tea.KeyEsc:       {Code: "Escape"},
	tea.KeyBackspace: {Code: "Backspace"},
	tea.KeySpace:     {Code: "Space", Key: " "},

	tea.KeyUp:    {Code: "ArrowUp"},
	tea.KeyDown:  {Code: "ArrowDown"},
	tea.KeyRight: {Code: "ArrowRight"},
	tea.KeyLeft:  {Code: "ArrowLeft"},

	tea.KeyShiftUp:    {Code: "ArrowUp", Shift: true},
	tea.KeyShiftDown:  {Code: "ArrowDown", Shift: true},
	tea.KeyShiftRight: {Code: "ArrowRight", Shift: true},
	tea.KeyShiftLeft:  {Code: "ArrowLeft", Shift: true},

	tea.KeyCtrlUp:    {Code: "ArrowUp", Ctrl: true},
	tea.KeyCtrlDown:  {Code: "ArrowDown", Ctrl: true},
	tea.KeyCtrlRight: {Code: "ArrowRight", Ctrl: true},
	tea.KeyCtrlLeft:  {Code: "ArrowLeft", Ctrl: true},

	tea.KeyCtrlShiftUp:    {Code: "ArrowUp", Ctrl: true, Shift: true},
	tea.KeyCtrlShiftDown:  {Code: "ArrowDown", Ctrl: true, Shift: true},
	tea.KeyCtrlShiftRight: {Code: "ArrowRight", Ctrl: true, Shift: true},
	tea.KeyCtrlShiftLeft:  {Code: "ArrowLeft", Ctrl: true, Shift: true},

	tea.KeyHome:          {Code: "Home"},
	tea.KeyEnd:           {Code: "End"},
	tea.KeyShiftHome:     {Code: "Home", Shift: true},
	tea.KeyShiftEnd:      {Code: "End", Shift: true},
	tea.KeyCtrlHome:      {Code: "Home", Ctrl: true},
	tea.KeyCtrlEnd:       {Code: "End", Ctrl: true},
	tea.KeyCtrlShiftHome: {Code: "Home", Ctrl: true, Shift: true},
	tea.KeyCtrlShiftEnd:  {Code: "End", Ctrl: true, Shift: true},

	tea.KeyPgUp:       {Code: "PageUp"},
	tea.KeyPgDown:     {Code: "PageDown"},
	tea.KeyCtrlPgUp:   {Code: "PageUp", Ctrl: true},
	tea.KeyCtrlPgDown: {Code: "PageDown", Ctrl: true},
	tea.KeyInsert:     {Code: "Insert"},
	tea.KeyDelete:     {Code: "Delete"},

	tea.KeyF1:  {Code: "F1"},
	tea.KeyF2:  {Code: "F2"},
	tea.KeyF3:  {Code: "F3"},
	tea.KeyF4:  {Code: "F4"},
	tea.KeyF5:  {Code: "F5"},
	tea.KeyF6:  {Code: "F6"},
	tea.KeyF7:  {Code: "F7"},
	tea.KeyF8:  {Code: "F8"},
	tea.KeyF9:  {Code: "F9"},
	tea.KeyF10: {Code: "F10"},
	tea.KeyF11: {Code: "F11"},
	tea.KeyF12: {Code: "F12"},
}

// keyEvent converts a bubbletea key into an input event. Multi-rune input
// is not a single key and is reported as false.
func keyEvent(msg tea.KeyMsg) (input.KeyEvent, bool) {
	if ev, ok := namedKeys[msg.Type]; ok {
		ev.Alt = msg.Alt
		return ev, true
	}

	switch {
	case msg.Type == tea.KeyRunes:
		if len(msg.Runes) != 1 {
			return input.KeyEvent{}, false
		}
		return input.KeyEvent{Key: string(msg.Runes), Alt: msg.Alt}, true
	case msg.Type >= tea.KeyCtrlAt && msg.Type <= tea.KeyCtrlUnderscore:
		// C0 controls arrive as their own key types; rebuild the letter.
		return input.KeyEvent{Key: string(rune('@' + int(msg.Type))), Ctrl: true, Alt: msg.Alt}, true
	}
	return input.KeyEvent{}, false
}
