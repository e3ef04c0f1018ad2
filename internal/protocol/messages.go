// Package protocol is the only place that understands wire bytes. It
// encodes frames and input events with a Codec and delimits them on stream
// transports with a length prefix.
package protocol

import "github.com/noirtty/noirtty/internal/grid"

// Message type tags
const (
	// Server to client
	TypeFrame   = "frame"
	TypeWelcome = "welcome"
	TypeError   = "error"

	// Client to server
	TypeInput   = "input"
	TypeResize  = "resize"
	TypePaste   = "paste"
	TypeScroll  = "scroll"
	TypeQuality = "quality"
	TypeHello   = "hello"
)

// Message is any value carried on the wire.
type Message interface {
	MessageType() string
}

// Frame is a complete snapshot of a session's grid. Applying frame N alone
// yields the same screen as applying frames 1..N in order.
type Frame struct {
	Sequence      uint64
	Cols          int
	Rows          int
	Cells         []grid.Cell
	CursorRow     int
	CursorCol     int
	CursorVisible bool
	// AppCursorKeys mirrors DECCKM so the client can encode arrow keys.
	AppCursorKeys bool
}

// NewFrame builds a frame from a grid snapshot.
func NewFrame(seq uint64, s grid.Snapshot) *Frame {
	return &Frame{
		Sequence:      seq,
		Cols:          s.Cols,
		Rows:          s.Rows,
		Cells:         s.Cells,
		CursorRow:     s.Cursor.Row,
		CursorCol:     s.Cursor.Col,
		CursorVisible: s.Cursor.Visible,
	}
}

// Snapshot converts the frame back into a grid snapshot. Cells are shared.
func (f *Frame) Snapshot() grid.Snapshot {
	return grid.Snapshot{
		Cols:  f.Cols,
		Rows:  f.Rows,
		Cells: f.Cells,
		Cursor: grid.Cursor{
			Row:     f.CursorRow,
			Col:     f.CursorCol,
			Visible: f.CursorVisible,
		},
	}
}

// Key carries raw bytes typed by the user.
type Key struct {
	Data []byte
}

// Resize asks the session to change the terminal size.
type Resize struct {
	Cols int
	Rows int
}

// Paste carries pasted text. The session wraps it in bracketed paste
// markers when the application enabled them.
type Paste struct {
	Text string
}

// Scroll moves the viewer's scrollback viewport by Delta rows; positive
// values scroll back into history.
type Scroll struct {
	Delta int
}

// Quality asks the server to send frames no more often than MinIntervalMS.
type Quality struct {
	MinIntervalMS int
}

// Hello opens a session on stream transports, which have no URL to carry
// connection parameters. The handshake is always JSON; Format names the
// codec used for every message after Welcome.
type Hello struct {
	Session string
	Cols    int
	Rows    int
	Format  string
}

// Welcome acknowledges Hello with the session actually attached.
type Welcome struct {
	Session string
}

// Error reports a failure that ends the connection.
type Error struct {
	Message string
}

func (*Frame) MessageType() string   { return TypeFrame }
func (*Key) MessageType() string     { return TypeInput }
func (*Resize) MessageType() string  { return TypeResize }
func (*Paste) MessageType() string   { return TypePaste }
func (*Scroll) MessageType() string  { return TypeScroll }
func (*Quality) MessageType() string { return TypeQuality }
func (*Hello) MessageType() string   { return TypeHello }
func (*Welcome) MessageType() string { return TypeWelcome }
func (*Error) MessageType() string   { return TypeError }
