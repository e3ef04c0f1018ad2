package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/noirtty/noirtty/internal/logger"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/noirtty/noirtty/internal/recovery"
	"github.com/rs/zerolog"
)

const DefaultMaxQueuedFrames = 8

// Stats are per-connection counters. They only grow until ResetCounters.
type Stats struct {
	MessagesReceived uint64
	BytesReceived    uint64
	Queued           int
}

// Channel is the client end of a connection. Send never blocks and
// TryReceive never waits; background goroutines do the I/O.
type Channel struct {
	conn  Conn
	codec protocol.Codec
	log   zerolog.Logger

	sendMu    sync.Mutex
	outbox    []protocol.Message
	sendReady chan struct{}

	mu            sync.Mutex
	inbox         []protocol.Message
	frames        int
	throttle      time.Duration
	maxFrames     int
	lastFrameTime time.Time
	stats         Stats
	err           error

	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel starts reading and writing conn. Messages are encoded with
// codec. A negative maxQueuedFrames disables the cap; zero selects
// DefaultMaxQueuedFrames.
func NewChannel(conn Conn, codec protocol.Codec, maxQueuedFrames int, log *zerolog.Logger) *Channel {
	switch {
	case maxQueuedFrames == 0:
		maxQueuedFrames = DefaultMaxQueuedFrames
	case maxQueuedFrames < 0:
		maxQueuedFrames = 0
	}
	l := logger.Component("transport")
	if log != nil {
		l = *log
	}
	c := &Channel{
		conn:      conn,
		codec:     codec,
		log:       l.With().Str("remote", conn.RemoteAddr()).Logger(),
		sendReady: make(chan struct{}, 1),
		maxFrames: maxQueuedFrames,
		done:      make(chan struct{}),
	}
	recovery.SafeGoWithCleanup("channel-reader", c.readLoop, func() { c.fail(ErrClosed) })
	recovery.SafeGoWithCleanup("channel-writer", c.writeLoop, func() { c.fail(ErrClosed) })
	return c
}

// Send queues msg for delivery in order. It fails only once the channel
// is closed.
func (c *Channel) Send(msg protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.sendMu.Lock()
	c.outbox = append(c.outbox, msg)
	c.sendMu.Unlock()

	select {
	case c.sendReady <- struct{}{}:
	default:
	}
	return nil
}

// TryReceive returns the next queued message, if any. While a frame
// throttle is set, a frame arriving sooner than the throttle interval after
// the previous one is held back and later messages are delivered first.
func (c *Channel) TryReceive() (protocol.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for i, msg := range c.inbox {
		if _, ok := msg.(*protocol.Frame); ok {
			if c.throttle > 0 && now.Sub(c.lastFrameTime) < c.throttle {
				continue
			}
			c.frames--
			c.lastFrameTime = now
		}
		c.inbox = append(c.inbox[:i], c.inbox[i+1:]...)
		return msg, true
	}
	return nil, false
}

// SetFrameThrottle sets the minimum interval between delivered frames and
// asks the server to send no faster. Zero removes the throttle.
func (c *Channel) SetFrameThrottle(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	c.throttle = d
	if d > 0 {
		c.coalesceFrames()
	}
	c.mu.Unlock()

	_ = c.Send(&protocol.Quality{MinIntervalMS: int(d / time.Millisecond)})
}

// SetMaxQueuedFrames bounds how many undelivered frames are kept; the
// oldest are discarded first. Zero means unlimited.
func (c *Channel) SetMaxQueuedFrames(n int) {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	c.maxFrames = n
	c.trimFrames()
	c.mu.Unlock()
}

func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Queued = len(c.inbox)
	return s
}

func (c *Channel) ResetCounters() {
	c.mu.Lock()
	c.stats = Stats{}
	c.mu.Unlock()
}

// Done is closed when the connection ends for any reason.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err reports why the channel closed: ErrClosed after Close, io.EOF when
// the server hung up, otherwise the failure.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Channel) Close() error {
	c.fail(ErrClosed)
	return nil
}

func (c *Channel) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
		if !errors.Is(err, ErrClosed) && !errors.Is(err, io.EOF) {
			c.log.Warn().Err(err).Msg("channel closed")
		} else {
			c.log.Debug().AnErr("reason", err).Msg("channel closed")
		}
	})
}

func (c *Channel) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Channel) readLoop() {
	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed() || errors.Is(err, net.ErrClosed) {
				err = ErrClosed
			}
			c.fail(err)
			return
		}
		msg, err := c.codec.Decode(data)
		if err != nil {
			c.fail(err)
			return
		}
		c.deliver(msg, len(data))
	}
}

func (c *Channel) deliver(msg protocol.Message, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.MessagesReceived++
	c.stats.BytesReceived += uint64(size)
	c.inbox = append(c.inbox, msg)
	if _, ok := msg.(*protocol.Frame); ok {
		c.frames++
		if c.throttle > 0 {
			c.coalesceFrames()
		}
		c.trimFrames()
	}
}

// requeue puts msg at the front of the inbox.
func (c *Channel) requeue(msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = append([]protocol.Message{msg}, c.inbox...)
}

// coalesceFrames keeps only the newest queued frame. Callers hold c.mu.
func (c *Channel) coalesceFrames() {
	if c.frames <= 1 {
		return
	}
	c.dropFrames(c.frames - 1)
}

// trimFrames enforces maxFrames. Callers hold c.mu.
func (c *Channel) trimFrames() {
	if c.maxFrames > 0 && c.frames > c.maxFrames {
		c.dropFrames(c.frames - c.maxFrames)
	}
}

// dropFrames removes the n oldest queued frames, leaving other messages
// in place.
func (c *Channel) dropFrames(n int) {
	kept := c.inbox[:0]
	for _, msg := range c.inbox {
		if _, ok := msg.(*protocol.Frame); ok && n > 0 {
			n--
			c.frames--
			continue
		}
		kept = append(kept, msg)
	}
	clear(c.inbox[len(kept):])
	c.inbox = kept
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.sendReady:
		case <-c.done:
			return
		}

		c.sendMu.Lock()
		batch := c.outbox
		c.outbox = nil
		c.sendMu.Unlock()

		for _, msg := range batch {
			data, err := c.codec.Encode(msg)
			if err != nil {
				c.log.Error().Err(err).Str("type", msg.MessageType()).Msg("failed to encode message")
				continue
			}
			if err := c.conn.WriteMessage(data); err != nil {
				if c.closed() {
					return
				}
				c.fail(err)
				return
			}
		}
	}
}
