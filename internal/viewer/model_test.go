package viewer

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/noirtty/noirtty/internal/ansi"
	"github.com/noirtty/noirtty/internal/grid"
	"github.com/noirtty/noirtty/internal/input"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	mu    sync.Mutex
	inbox []protocol.Message
	sent  []protocol.Message
	done  chan struct{}
	err   error
}

func newFakeLink() *fakeLink {
	return &fakeLink{done: make(chan struct{})}
}

func (l *fakeLink) Send(msg protocol.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, msg)
	return nil
}

func (l *fakeLink) TryReceive() (protocol.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inbox) == 0 {
		return nil, false
	}
	msg := l.inbox[0]
	l.inbox = l.inbox[1:]
	return msg, true
}

func (l *fakeLink) Done() <-chan struct{} { return l.done }
func (l *fakeLink) Err() error            { return l.err }

func (l *fakeLink) push(msgs ...protocol.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inbox = append(l.inbox, msgs...)
}

func frameOf(seq uint64, cols, rows int, text string) *protocol.Frame {
	g := grid.New(cols, rows)
	_, _ = ansi.NewInterpreter(g).Write([]byte(text))
	return protocol.NewFrame(seq, g.Snapshot())
}

func tick(m *Model) {
	m.Update(tickMsg(time.Now()))
}

func TestModel_AppliesFramesOnTick(t *testing.T) {
	link := newFakeLink()
	m := New(link, 20, 3, 0)
	require.NotNil(t, m.Init())

	link.push(&protocol.Welcome{Session: "main"}, frameOf(1, 20, 3, "hello"), frameOf(2, 20, 3, "hello\r\nworld"))
	_, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd, "ticking continues while connected")

	assert.Equal(t, "main", m.Session())
	assert.Equal(t, uint64(2), m.Engine().LastApplied())
	view := m.View()
	assert.Contains(t, view, "hello")
	assert.Contains(t, view, "world")
}

func TestModel_TypingPredictsAndSends(t *testing.T) {
	link := newFakeLink()
	m := New(link, 20, 3, 0)
	link.push(frameOf(1, 20, 3, "$ "))
	tick(m)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	assert.Equal(t, "$ a", m.Engine().CurrentGrid().RowText(0))

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("xyz")})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p"), Alt: true})

	assert.Equal(t, []protocol.Message{
		&protocol.Key{Data: []byte("a")},
		&protocol.Key{Data: []byte("\r")},
		&protocol.Key{Data: []byte{0x03}},
		&protocol.Key{Data: []byte("\x1b[A")},
		&protocol.Key{Data: []byte("xyz")},
		&protocol.Key{Data: []byte("\x1bp")},
	}, link.sent)
}

func TestModel_AppCursorKeysFollowFrames(t *testing.T) {
	link := newFakeLink()
	m := New(link, 10, 2, 0)
	f := frameOf(1, 10, 2, "")
	f.AppCursorKeys = true
	link.push(f)
	tick(m)

	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, []protocol.Message{&protocol.Key{Data: []byte("\x1bOD")}}, link.sent)
}

func TestModel_Paste(t *testing.T) {
	link := newFakeLink()
	m := New(link, 10, 2, 0)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("echo hi\n"), Paste: true})
	assert.Equal(t, []protocol.Message{&protocol.Paste{Text: "echo hi\n"}}, link.sent)
}

func TestModel_ResizeSendsOnce(t *testing.T) {
	link := newFakeLink()
	m := New(link, 80, 24, 0)

	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.Empty(t, link.sent)

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Equal(t, []protocol.Message{&protocol.Resize{Cols: 100, Rows: 30}}, link.sent)
	assert.Equal(t, 100, m.Engine().Cols())
	assert.Equal(t, 30, m.Engine().Rows())
}

func TestModel_Mouse(t *testing.T) {
	link := newFakeLink()
	m := New(link, 10, 2, 0)
	link.push(frameOf(1, 10, 2, "abcdef"))
	tick(m)

	m.Update(tea.MouseMsg{Button: tea.MouseButtonWheelUp})
	m.Update(tea.MouseMsg{Button: tea.MouseButtonWheelDown})
	assert.Equal(t, []protocol.Message{&protocol.Scroll{Delta: 3}, &protocol.Scroll{Delta: -3}}, link.sent)

	m.Update(tea.MouseMsg{X: 1, Y: 0, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	m.Update(tea.MouseMsg{X: 3, Y: 0, Button: tea.MouseButtonLeft, Action: tea.MouseActionMotion})
	m.Update(tea.MouseMsg{X: 3, Y: 0, Button: tea.MouseButtonLeft, Action: tea.MouseActionRelease})
	assert.Equal(t, "bcd", m.Engine().SelectionText())

	// Typing clears the selection.
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'z'}})
	assert.Empty(t, m.Engine().SelectionText())
}

func TestModel_Detach(t *testing.T) {
	m := New(newFakeLink(), 10, 2, 0)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlCloseBracket})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.Detached())
}

func TestModel_Disconnect(t *testing.T) {
	link := newFakeLink()
	link.err = errors.New("connection reset")
	m := New(link, 10, 2, 0)
	link.push(frameOf(1, 10, 2, "last"))
	close(link.done)

	_, cmd := m.Update(tickMsg(time.Now()))
	assert.Nil(t, cmd, "ticking stops after disconnect")
	assert.Contains(t, m.Status(), "connection reset")

	view := m.View()
	assert.Contains(t, view, "last", "last grid stays visible")
	assert.Contains(t, view, "connection reset")

	// Keys no longer reach the channel; Enter dismisses.
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	assert.Nil(t, cmd)
	assert.Empty(t, link.sent)
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, m.Detached())
}

func TestModel_ServerError(t *testing.T) {
	link := newFakeLink()
	m := New(link, 10, 2, 0)
	link.push(&protocol.Error{Message: "spawn failed"})
	tick(m)
	assert.Equal(t, "server error: spawn failed", m.Status())
}

func TestKeyEvent(t *testing.T) {
	tests := []struct {
		msg  tea.KeyMsg
		want input.KeyEvent
		ok   bool
	}{
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}, input.KeyEvent{Key: "q"}, true},
		{tea.KeyMsg{Type: tea.KeySpace}, input.KeyEvent{Code: "Space", Key: " "}, true},
		{tea.KeyMsg{Type: tea.KeyCtrlA}, input.KeyEvent{Key: "A", Ctrl: true}, true},
		{tea.KeyMsg{Type: tea.KeyCtrlAt}, input.KeyEvent{Key: "@", Ctrl: true}, true},
		{tea.KeyMsg{Type: tea.KeyTab}, input.KeyEvent{Code: "Tab"}, true},
		{tea.KeyMsg{Type: tea.KeyShiftTab}, input.KeyEvent{Code: "Tab", Shift: true}, true},
		{tea.KeyMsg{Type: tea.KeyCtrlShiftUp}, input.KeyEvent{Code: "ArrowUp", Ctrl: true, Shift: true}, true},
		{tea.KeyMsg{Type: tea.KeyUp, Alt: true}, input.KeyEvent{Code: "ArrowUp", Alt: true}, true},
		{tea.KeyMsg{Type: tea.KeyF5}, input.KeyEvent{Code: "F5"}, true},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ab")}, input.KeyEvent{}, false},
		{tea.KeyMsg{Type: tea.KeyF20}, input.KeyEvent{}, false},
	}
	for _, tt := range tests {
		got, ok := keyEvent(tt.msg)
		assert.Equal(t, tt.ok, ok, tt.msg.String())
		assert.Equal(t, tt.want, got, tt.msg.String())
	}
}

func TestRender(t *testing.T) {
	g := grid.New(6, 2)
	_, _ = ansi.NewInterpreter(g).Write([]byte("\x1b[1mab\x1b[0m漢\r\nxy"))
	out := Render(g.Snapshot())

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ab")
	assert.Contains(t, lines[0], "漢")
	assert.Equal(t, 6, lipgloss.Width(lines[0]), "the spacer cell of a wide glyph is not drawn")
	assert.Contains(t, lines[1], "xy")
}

func TestModel_SessionEnded(t *testing.T) {
	link := newFakeLink()
	link.err = io.EOF
	m := New(link, 10, 2, 0)
	close(link.done)

	tick(m)
	assert.Equal(t, "session ended", m.Status())
}
