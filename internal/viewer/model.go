// Package viewer is the interactive terminal client. It draws the
// reconciled view of a remote session with bubbletea and forwards keys,
// pastes, resizes and scrolling over a transport channel.
package viewer

import (
	"errors"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/noirtty/noirtty/internal/input"
	"github.com/noirtty/noirtty/internal/logger"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/noirtty/noirtty/internal/reconcile"
	"github.com/rs/zerolog"
)

const (
	DefaultRenderInterval = time.Second / 60
	scrollStep            = 3
)

// Link is the part of a transport channel the viewer uses.
type Link interface {
	Send(msg protocol.Message) error
	TryReceive() (protocol.Message, bool)
	Done() <-chan struct{}
	Err() error
}

type tickMsg time.Time

// Model is the bubbletea model for an attached session.
type Model struct {
	link     Link
	engine   *reconcile.Engine
	interval time.Duration
	log      zerolog.Logger

	session      string
	width        int
	height       int
	disconnected bool
	status       string
	detached     bool
	rendered     string
}

// New returns a model showing a cols x rows view fed by link.
func New(link Link, cols, rows int, interval time.Duration) *Model {
	if interval <= 0 {
		interval = DefaultRenderInterval
	}
	return &Model{
		link:     link,
		engine:   reconcile.New(cols, rows),
		interval: interval,
		log:      logger.Component("viewer"),
		width:    cols,
		height:   rows,
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Init() tea.Cmd {
	return m.tick()
}

// Detached reports whether the user left with the detach key rather than
// the session ending.
func (m *Model) Detached() bool { return m.detached }

// Status is the last connection status line, empty while connected.
func (m *Model) Status() string { return m.status }

// Session is the id the server attached us to, once known.
func (m *Model) Session() string { return m.session }

// Engine exposes the reconciled view.
func (m *Model) Engine() *reconcile.Engine { return m.engine }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.drain()
		if m.disconnected {
			return m, nil
		}
		return m, m.tick()

	case tea.WindowSizeMsg:
		return m, m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil
	}
	return m, nil
}

// drain applies everything the channel has queued.
func (m *Model) drain() {
	for {
		msg, ok := m.link.TryReceive()
		if !ok {
			break
		}
		switch msg := msg.(type) {
		case *protocol.Frame:
			m.engine.ApplyFrame(msg)
		case *protocol.Welcome:
			m.session = msg.Session
			m.log.Debug().Str("session", msg.Session).Msg("attached")
		case *protocol.Error:
			m.status = "server error: " + msg.Message
			m.log.Warn().Str("message", msg.Message).Msg("server reported an error")
		}
	}

	if !m.disconnected {
		select {
		case <-m.link.Done():
			m.disconnected = true
			if m.status == "" {
				switch err := m.link.Err(); {
				case errors.Is(err, io.EOF):
					m.status = "session ended"
				case err != nil:
					m.status = "disconnected: " + err.Error()
				default:
					m.status = "disconnected"
				}
			}
		default:
		}
	}
}

func (m *Model) resize(width, height int) tea.Cmd {
	if width < 1 || height < 1 || (width == m.width && height == m.height) {
		return nil
	}
	m.width, m.height = width, height
	m.engine.Resize(width, height)
	m.send(&protocol.Resize{Cols: width, Rows: height})
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlCloseBracket {
		m.detached = true
		return tea.Quit
	}
	if m.disconnected {
		if msg.Type == tea.KeyEnter || msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return tea.Quit
		}
		return nil
	}

	if msg.Paste {
		m.send(&protocol.Paste{Text: string(msg.Runes)})
		return nil
	}

	var data []byte
	if ev, ok := keyEvent(msg); ok {
		data, ok = input.Encode(ev, m.engine.AppCursorKeys())
		if !ok {
			return nil
		}
	} else if msg.Type == tea.KeyRunes && len(msg.Runes) > 0 {
		data = []byte(string(msg.Runes))
		if msg.Alt {
			data = append([]byte{0x1b}, data...)
		}
	} else {
		return nil
	}

	key := &protocol.Key{Data: data}
	m.engine.ClearSelection()
	m.engine.HandleInput(key)
	m.send(key)
	return nil
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		m.send(&protocol.Scroll{Delta: scrollStep})
	case msg.Button == tea.MouseButtonWheelDown:
		m.send(&protocol.Scroll{Delta: -scrollStep})
	case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
		m.engine.StartSelection(msg.Y, msg.X)
	case msg.Action == tea.MouseActionMotion:
		m.engine.UpdateSelection(msg.Y, msg.X)
	case msg.Action == tea.MouseActionRelease:
		m.engine.EndSelection()
	}
}

func (m *Model) send(msg protocol.Message) {
	if err := m.link.Send(msg); err != nil {
		m.log.Debug().Err(err).Str("type", msg.MessageType()).Msg("dropping message for closed channel")
	}
}

// View draws the current grid. Rendering is skipped while nothing changed.
func (m *Model) View() string {
	if m.engine.Dirty() || m.rendered == "" {
		m.rendered = Render(m.engine.CurrentGrid())
		m.engine.MarkClean()
	}
	if m.status != "" {
		return m.rendered + "\n" + statusStyle.Render(m.status)
	}
	return m.rendered
}
