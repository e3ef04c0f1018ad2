package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	// ALPN identifies the protocol on QUIC connections.
	ALPN = "noirtty"

	ptyPath = "/v1/pty"
)

// Options configure Connect.
type Options struct {
	// Codec encodes messages after the handshake. Defaults to JSON.
	Codec          protocol.Codec
	ConnectTimeout time.Duration
	// FrameThrottle, when set, is applied with SetFrameThrottle after the
	// channel opens.
	FrameThrottle time.Duration
	// MaxQueuedFrames caps undelivered frames; zero selects the default and
	// a negative value removes the cap.
	MaxQueuedFrames int
	// TLSConfig is used for wss:// and quic:// endpoints.
	TLSConfig *tls.Config
	// Insecure skips certificate verification when TLSConfig is nil.
	Insecure bool
	Logger   *zerolog.Logger
}

// Connect opens a channel to the session id on endpoint, creating the
// session at cols x rows if it does not exist. The scheme selects the
// substrate: ws, wss, http and https use WebSocket; tcp and quic use a
// length-prefixed stream with a Hello handshake.
func Connect(ctx context.Context, endpoint, sessionID string, cols, rows int, opts Options) (*Channel, error) {
	if opts.Codec == nil {
		opts.Codec = protocol.JSONCodec{}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	var conn Conn
	stream := true
	switch u.Scheme {
	case "ws", "wss", "http", "https":
		stream = false
		conn, err = dialWebSocket(dialCtx, u, sessionID, cols, rows, opts)
	case "tcp":
		conn, err = dialTCP(dialCtx, u.Host)
	case "quic":
		conn, err = dialQUIC(dialCtx, u.Host, opts)
	default:
		err = fmt.Errorf("%w: %q", ErrBadScheme, u.Scheme)
	}
	var welcome *protocol.Welcome
	if err == nil && stream {
		welcome, err = handshake(dialCtx, conn, &protocol.Hello{
			Session: sessionID,
			Cols:    cols,
			Rows:    rows,
			Format:  opts.Codec.Name(),
		})
		if err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrConnectTimeout
		}
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	ch := NewChannel(conn, opts.Codec, opts.MaxQueuedFrames, opts.Logger)
	if welcome != nil {
		// Stream viewers see Welcome first, as WebSocket viewers do.
		ch.requeue(welcome)
	}
	if opts.FrameThrottle > 0 {
		ch.SetFrameThrottle(opts.FrameThrottle)
	}
	return ch, nil
}

func dialWebSocket(ctx context.Context, u *url.URL, sessionID string, cols, rows int, opts Options) (Conn, error) {
	target := *u
	switch target.Scheme {
	case "http":
		target.Scheme = "ws"
	case "https":
		target.Scheme = "wss"
	}
	if target.Path == "" || target.Path == "/" {
		target.Path = ptyPath
	}
	q := target.Query()
	if sessionID != "" {
		q.Set("session", sessionID)
	}
	q.Set("cols", strconv.Itoa(cols))
	q.Set("rows", strconv.Itoa(rows))
	q.Set("format", opts.Codec.Name())
	target.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		Proxy:           websocket.DefaultDialer.Proxy,
		TLSClientConfig: clientTLS(opts),
	}
	c, resp, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		if resp != nil {
			// A refused upgrade carries the server's reason in the body.
			if msg := refusalMessage(resp); msg != "" && resp.StatusCode >= http.StatusBadRequest {
				return nil, &RemoteError{Message: msg}
			}
			return nil, fmt.Errorf("websocket handshake: %s: %w", resp.Status, err)
		}
		return nil, err
	}
	return NewWebSocketConn(c, opts.Codec.Name() == protocol.FormatBinary), nil
}

func refusalMessage(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return strings.TrimSpace(string(body))
}

func dialTCP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewStreamConn(c), nil
}

func dialQUIC(ctx context.Context, addr string, opts Options) (Conn, error) {
	tlsConf := clientTLS(opts)
	tlsConf.NextProtos = []string{ALPN}
	qc, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{KeepAlivePeriod: 15 * time.Second})
	if err != nil {
		return nil, err
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, err
	}
	return newQUICConn(qc, stream), nil
}

func clientTLS(opts Options) *tls.Config {
	if opts.TLSConfig != nil {
		return opts.TLSConfig.Clone()
	}
	return &tls.Config{InsecureSkipVerify: opts.Insecure} //nolint:gosec // opt-in via --insecure
}

// handshake sends hello and waits for Welcome. The exchange is JSON
// regardless of the codec chosen for the rest of the connection.
func handshake(ctx context.Context, conn Conn, hello *protocol.Hello) (*protocol.Welcome, error) {
	data, err := protocol.JSONCodec{}.Encode(hello)
	if err != nil {
		return nil, err
	}

	type reply struct {
		welcome *protocol.Welcome
		err     error
	}
	result := make(chan reply, 1)
	go func() {
		if err := conn.WriteMessage(data); err != nil {
			result <- reply{err: err}
			return
		}
		data, err := conn.ReadMessage()
		if err != nil {
			result <- reply{err: err}
			return
		}
		msg, err := protocol.JSONCodec{}.Decode(data)
		if err != nil {
			result <- reply{err: err}
			return
		}
		switch m := msg.(type) {
		case *protocol.Welcome:
			result <- reply{welcome: m}
		case *protocol.Error:
			result <- reply{err: &RemoteError{Message: m.Message}}
		default:
			result <- reply{err: fmt.Errorf("unexpected %s during handshake", m.MessageType())}
		}
	}()

	select {
	case r := <-result:
		return r.welcome, r.err
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	}
}
