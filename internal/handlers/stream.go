package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/noirtty/noirtty/internal/recovery"
	"github.com/noirtty/noirtty/internal/transport"
)

// HelloTimeout bounds how long a stream connection may stay silent before
// sending Hello.
var HelloTimeout = 10 * time.Second

// ServeStream accepts TCP or QUIC connections from ln until Shutdown. Each
// connection opens with a JSON Hello naming the session, size and codec.
func (h *PTYHandler) ServeStream(ln transport.Listener) error {
	log := h.log.With().Str("listener", ln.Addr().String()).Logger()
	log.Info().Msg("accepting stream connections")

	for {
		conn, err := ln.Accept(h.ctx)
		if err != nil {
			if h.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		recovery.SafeGo("pty-stream-conn", func() {
			h.handleStream(conn)
		})
	}
}

func (h *PTYHandler) handleStream(conn transport.Conn) {
	hello, err := h.readHello(conn)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", conn.RemoteAddr()).Msg("stream handshake failed")
		if protocol.IsProtocolError(err) {
			sendMessage(conn, protocol.JSONCodec{}, &protocol.Error{Message: err.Error()})
		}
		_ = conn.Close()
		return
	}

	codec, err := protocol.CodecFor(hello.Format)
	if err == nil && (!validSize(hello.Cols) || !validSize(hello.Rows)) {
		err = fmt.Errorf("invalid size %dx%d", hello.Cols, hello.Rows)
	}
	if err != nil {
		sendMessage(conn, protocol.JSONCodec{}, &protocol.Error{Message: err.Error()})
		_ = conn.Close()
		return
	}
	sess, created, err := h.openSession(hello.Session, hello.Cols, hello.Rows)
	if err != nil {
		sendMessage(conn, protocol.JSONCodec{}, &protocol.Error{Message: err.Error()})
		_ = conn.Close()
		return
	}
	h.serveConn(conn, codec, sess, created, true)
}

func (h *PTYHandler) readHello(conn transport.Conn) (*protocol.Hello, error) {
	timer := time.AfterFunc(HelloTimeout, func() { _ = conn.Close() })
	defer timer.Stop()
	stop := context.AfterFunc(h.ctx, func() { _ = conn.Close() })
	defer stop()

	data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	msg, err := protocol.JSONCodec{}.Decode(data)
	if err != nil {
		return nil, err
	}
	hello, ok := msg.(*protocol.Hello)
	if !ok {
		return nil, &protocol.ProtocolError{
			Op:  "handshake",
			Err: errors.New("expected hello, got " + msg.MessageType()),
		}
	}
	return hello, nil
}
