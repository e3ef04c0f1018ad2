// Package transport moves encoded protocol messages between a viewer and a
// server over WebSocket, TCP or QUIC, and provides the client Channel that
// queues and throttles what arrives.
package transport

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/quic-go/quic-go"
)

// Conn is one message-preserving connection. ReadMessage may be called
// from one goroutine and WriteMessage from another at the same time.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage([]byte) error
	Close() error
	RemoteAddr() string
}

// messageConn is the shape shared by gorilla and fiber websocket
// connections.
type messageConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	WriteControl(int, []byte, time.Time) error
	Close() error
	RemoteAddr() net.Addr
}

type wsConn struct {
	c       messageConn
	msgType int
}

// NewWebSocketConn adapts a websocket connection. Messages are sent as
// binary frames when binary is set and as text frames otherwise; either
// kind is accepted on read.
func NewWebSocketConn(c messageConn, binary bool) Conn {
	msgType := websocket.TextMessage
	if binary {
		msgType = websocket.BinaryMessage
	}
	return &wsConn{c: c, msgType: msgType}
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.c.WriteMessage(w.msgType, data)
}

// Close sends a normal closure so the peer reads io.EOF rather than an
// abnormal close.
func (w *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.c.Close()
}

func (w *wsConn) RemoteAddr() string { return w.c.RemoteAddr().String() }

// streamConn delimits messages on an ordered byte stream with the protocol
// length prefix.
type streamConn struct {
	rw     io.ReadWriter
	closer func() error
	remote string
	limit  int

	wmu sync.Mutex
}

// NewStreamConn frames messages over a TCP connection.
func NewStreamConn(c net.Conn) Conn {
	return &streamConn{rw: c, closer: c.Close, remote: c.RemoteAddr().String()}
}

func newQUICConn(conn *quic.Conn, stream *quic.Stream) Conn {
	return &streamConn{
		rw: stream,
		closer: func() error {
			stream.CancelRead(0)
			_ = stream.Close()
			return conn.CloseWithError(0, "")
		},
		remote: conn.RemoteAddr().String(),
	}
}

func (s *streamConn) ReadMessage() ([]byte, error) {
	return protocol.ReadFrame(s.rw, s.limit)
}

func (s *streamConn) WriteMessage(data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return protocol.WriteFrame(s.rw, data)
}

func (s *streamConn) Close() error      { return s.closer() }
func (s *streamConn) RemoteAddr() string { return s.remote }
