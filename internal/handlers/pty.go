package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/noirtty/noirtty/internal/logger"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/noirtty/noirtty/internal/recovery"
	"github.com/noirtty/noirtty/internal/session"
	"github.com/noirtty/noirtty/internal/transport"
	"github.com/rs/zerolog"
)

var errSessionEnded = errors.New("session ended")

// PTYHandler attaches viewer connections to shell sessions. WebSocket
// connections arrive through fiber; TCP and QUIC connections through
// ServeStream.
type PTYHandler struct {
	registry *session.Registry
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	nextID atomic.Uint64

	mu    sync.Mutex // orders conns.Add against Shutdown
	conns sync.WaitGroup
}

// NewPTYHandler creates a new PTY handler
func NewPTYHandler(registry *session.Registry) *PTYHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &PTYHandler{
		registry: registry,
		log:      logger.Component("pty"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterRoutes registers all PTY-related routes
func (h *PTYHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Get("/pty", h.HandleWebSocket)
}

// Shutdown disconnects every viewer and waits for their handlers to
// return. Sessions are left running.
func (h *PTYHandler) Shutdown() {
	h.mu.Lock()
	h.cancel()
	h.mu.Unlock()
	h.conns.Wait()
}

// track registers a connection handler, or reports false once Shutdown
// has begun.
func (h *PTYHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	h.conns.Add(1)
	return true
}

// HandleWebSocket handles WebSocket connections for PTY
// @Summary Attach to a PTY session
// @Description Upgrades to a WebSocket carrying frames and input events
// @Tags pty
// @Param session query string false "Session ID (a new session is created when empty)"
// @Param cols query int false "Columns for a newly created session"
// @Param rows query int false "Rows for a newly created session"
// @Param format query string false "json or binary"
// @Success 101 {string} string "Switching Protocols"
// @Failure 400 {string} string "Invalid format or size"
// @Failure 503 {string} string "Session could not be started"
// @Router /v1/pty [get]
func (h *PTYHandler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	codec, err := protocol.CodecFor(c.Query("format"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	cols, rows := c.QueryInt("cols", 0), c.QueryInt("rows", 0)
	if !validSize(cols) || !validSize(rows) {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid size %dx%d", cols, rows))
	}

	// Resolve the session before upgrading so a spawn failure refuses the
	// connection outright.
	sess, created, err := h.openSession(c.Query("session"), cols, rows)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	return websocket.New(func(ws *websocket.Conn) {
		conn := transport.NewWebSocketConn(ws, codec.Name() == protocol.FormatBinary)
		h.serveConn(conn, codec, sess, created, false)
	})(c)
}

func (h *PTYHandler) openSession(id string, cols, rows int) (*session.Session, bool, error) {
	sess, created, err := h.registry.GetOrCreate(h.ctx, id, cols, rows)
	if err != nil {
		h.log.Error().Err(err).Str("session", id).Msg("failed to open session")
		return nil, false, err
	}
	return sess, created, nil
}

// zero leaves the size to the server default
func validSize(n int) bool {
	return n >= 0 && n <= protocol.MaxDimension
}

// serveConn welcomes the viewer and runs it until either side goes away.
// On stream transports the Welcome belongs to the JSON handshake.
func (h *PTYHandler) serveConn(conn transport.Conn, codec protocol.Codec, sess *session.Session, created, handshake bool) {
	defer conn.Close()
	if !h.track() {
		return
	}
	defer h.conns.Done()

	stop := context.AfterFunc(h.ctx, func() { _ = conn.Close() })
	defer stop()

	connID := h.nextID.Add(1)
	log := h.log.With().
		Uint64("conn", connID).
		Str("remote", conn.RemoteAddr()).
		Str("format", codec.Name()).
		Str("session", sess.ID).
		Logger()

	replyCodec := codec
	if handshake {
		replyCodec = protocol.JSONCodec{}
	}
	if !sendMessage(conn, replyCodec, &protocol.Welcome{Session: sess.ID}) {
		return
	}
	log.Info().Bool("created", created).Msg("viewer attached")

	err := newViewer(conn, codec, sess, log).run(h.ctx)
	switch {
	case err == nil, errors.Is(err, errSessionEnded), errors.Is(err, context.Canceled):
		log.Info().AnErr("reason", err).Msg("viewer detached")
	case protocol.IsProtocolError(err):
		log.Warn().Err(err).Msg("closing connection after protocol error")
	default:
		log.Warn().Err(err).Msg("viewer detached with error")
	}
}

func sendMessage(conn transport.Conn, codec protocol.Codec, msg protocol.Message) bool {
	data, err := codec.Encode(msg)
	if err != nil {
		return false
	}
	return conn.WriteMessage(data) == nil
}

// viewer pumps one connection: frames out, input events in. Only the
// run goroutine writes to the connection.
type viewer struct {
	conn  transport.Conn
	codec protocol.Codec
	sess  *session.Session
	log   zerolog.Logger

	// minimum spacing between frames in nanoseconds, set by Quality
	minInterval atomic.Int64
}

func newViewer(conn transport.Conn, codec protocol.Codec, sess *session.Session, log zerolog.Logger) *viewer {
	return &viewer{conn: conn, codec: codec, sess: sess, log: log}
}

func (v *viewer) run(ctx context.Context) error {
	sub, err := v.sess.Subscribe()
	if err != nil {
		return errSessionEnded
	}
	defer sub.Close()

	var readErr error
	readDone := make(chan struct{})
	recovery.SafeGoWithCleanup("pty-viewer-read", func() {
		readErr = v.readLoop()
	}, func() {
		close(readDone)
	})

	err = v.writeLoop(ctx, sub.Frames(), readDone)
	if err == nil {
		err = readErr
		if protocol.IsProtocolError(err) {
			sendMessage(v.conn, v.codec, &protocol.Error{Message: err.Error()})
		}
	}
	_ = v.conn.Close()
	<-readDone
	return err
}

// writeLoop sends frames as they are published, at most one per
// minInterval. A frame that arrives too early is held and replaced by any
// newer one. It returns nil when the read side finished first.
func (v *viewer) writeLoop(ctx context.Context, frames <-chan *protocol.Frame, readDone <-chan struct{}) error {
	var (
		pending  *protocol.Frame
		lastSent time.Time
		timerC   <-chan time.Time
	)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-readDone:
			return nil
		case <-timerC:
			timerC = nil
		case f, ok := <-frames:
			if !ok {
				if pending != nil {
					_ = v.send(pending)
				}
				return errSessionEnded
			}
			pending = f
		}

		if pending == nil {
			continue
		}
		if wait := time.Duration(v.minInterval.Load()) - time.Since(lastSent); wait > 0 {
			if timerC == nil {
				timer.Reset(wait)
				timerC = timer.C
			}
			continue
		}
		if err := v.send(pending); err != nil {
			return err
		}
		pending = nil
		lastSent = time.Now()
	}
}

func (v *viewer) send(msg protocol.Message) error {
	data, err := v.codec.Encode(msg)
	if err != nil {
		return err
	}
	return v.conn.WriteMessage(data)
}

func (v *viewer) readLoop() error {
	for {
		data, err := v.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		msg, err := v.codec.Decode(data)
		if err != nil {
			return err
		}
		if err := v.dispatch(msg); err != nil {
			return err
		}
	}
}

func (v *viewer) dispatch(msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.Key:
		return v.sess.WriteInput(m.Data)
	case *protocol.Paste:
		return v.sess.WritePaste(m.Text)
	case *protocol.Resize:
		err := v.sess.Resize(m.Cols, m.Rows)
		if errors.Is(err, session.ErrInvalidSize) {
			return &protocol.ProtocolError{Op: "resize", Err: err}
		}
		return err
	case *protocol.Scroll:
		return v.sess.Scroll(m.Delta)
	case *protocol.Quality:
		interval := time.Duration(max(m.MinIntervalMS, 0)) * time.Millisecond
		v.minInterval.Store(int64(interval))
		v.log.Debug().Dur("min_interval", interval).Msg("frame interval changed")
		return nil
	}
	return &protocol.ProtocolError{
		Op:  "dispatch",
		Err: fmt.Errorf("%w: %s from client", protocol.ErrUnknownType, msg.MessageType()),
	}
}
