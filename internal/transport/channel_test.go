package transport

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/noirtty/noirtty/internal/grid"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn is an in-memory Conn. Messages pushed with deliver are read by
// the channel; messages the channel writes appear on sent.
type pipeConn struct {
	in   chan []byte
	sent chan []byte
	once sync.Once
	done chan struct{}
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:   make(chan []byte, 64),
		sent: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (p *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case data, ok := <-p.in:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-p.done:
		return nil, net.ErrClosed
	}
}

func (p *pipeConn) WriteMessage(data []byte) error {
	select {
	case <-p.done:
		return net.ErrClosed
	case p.sent <- data:
		return nil
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *pipeConn) RemoteAddr() string { return "pipe" }

func (p *pipeConn) deliver(t *testing.T, msg protocol.Message) {
	t.Helper()
	data, err := protocol.JSONCodec{}.Encode(msg)
	require.NoError(t, err)
	p.in <- data
}

func (p *pipeConn) nextSent(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case data := <-p.sent:
		msg, err := protocol.JSONCodec{}.Decode(data)
		require.NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("nothing sent")
		return nil
	}
}

func frame(seq uint64) *protocol.Frame {
	return &protocol.Frame{Sequence: seq, Cols: 1, Rows: 1, Cells: []grid.Cell{grid.BlankCell()}}
}

func waitQueued(t *testing.T, ch *Channel, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return ch.Stats().MessagesReceived >= uint64(n) },
		2*time.Second, 5*time.Millisecond)
}

func TestChannel_SendPreservesOrder(t *testing.T) {
	conn := newPipeConn()
	ch := NewChannel(conn, protocol.JSONCodec{}, 0, nil)
	defer ch.Close()

	require.NoError(t, ch.Send(&protocol.Key{Data: []byte("a")}))
	require.NoError(t, ch.Send(&protocol.Resize{Cols: 10, Rows: 5}))
	require.NoError(t, ch.Send(&protocol.Key{Data: []byte("b")}))

	assert.Equal(t, &protocol.Key{Data: []byte("a")}, conn.nextSent(t))
	assert.Equal(t, &protocol.Resize{Cols: 10, Rows: 5}, conn.nextSent(t))
	assert.Equal(t, &protocol.Key{Data: []byte("b")}, conn.nextSent(t))
}

func TestChannel_TryReceive(t *testing.T) {
	conn := newPipeConn()
	ch := NewChannel(conn, protocol.JSONCodec{}, 0, nil)
	defer ch.Close()

	_, ok := ch.TryReceive()
	assert.False(t, ok)

	conn.deliver(t, &protocol.Welcome{Session: "s"})
	conn.deliver(t, frame(1))
	waitQueued(t, ch, 2)

	msg, ok := ch.TryReceive()
	require.True(t, ok)
	assert.Equal(t, &protocol.Welcome{Session: "s"}, msg)
	msg, ok = ch.TryReceive()
	require.True(t, ok)
	assert.Equal(t, uint64(1), msg.(*protocol.Frame).Sequence)
	_, ok = ch.TryReceive()
	assert.False(t, ok)
}

func TestChannel_MaxQueuedFramesDropsOldest(t *testing.T) {
	conn := newPipeConn()
	ch := NewChannel(conn, protocol.JSONCodec{}, 3, nil)
	defer ch.Close()

	for seq := uint64(1); seq <= 5; seq++ {
		conn.deliver(t, frame(seq))
	}
	conn.deliver(t, &protocol.Error{Message: "kept"})
	waitQueued(t, ch, 6)

	var got []uint64
	for {
		msg, ok := ch.TryReceive()
		if !ok {
			break
		}
		if f, isFrame := msg.(*protocol.Frame); isFrame {
			got = append(got, f.Sequence)
		} else {
			assert.Equal(t, &protocol.Error{Message: "kept"}, msg)
		}
	}
	assert.Equal(t, []uint64{3, 4, 5}, got)
}

func TestChannel_Unlimited(t *testing.T) {
	conn := newPipeConn()
	ch := NewChannel(conn, protocol.JSONCodec{}, -1, nil)
	defer ch.Close()

	for seq := uint64(1); seq <= 20; seq++ {
		conn.deliver(t, frame(seq))
	}
	waitQueued(t, ch, 20)
	assert.Equal(t, 20, ch.Stats().Queued)

	ch.SetMaxQueuedFrames(2)
	assert.Equal(t, 2, ch.Stats().Queued)
}

func TestChannel_FrameThrottle(t *testing.T) {
	conn := newPipeConn()
	ch := NewChannel(conn, protocol.JSONCodec{}, 0, nil)
	defer ch.Close()

	ch.SetFrameThrottle(200 * time.Millisecond)
	assert.Equal(t, &protocol.Quality{MinIntervalMS: 200}, conn.nextSent(t))

	for seq := uint64(1); seq <= 4; seq++ {
		conn.deliver(t, frame(seq))
	}
	waitQueued(t, ch, 4)

	// Surplus frames coalesce into the newest.
	msg, ok := ch.TryReceive()
	require.True(t, ok)
	assert.Equal(t, uint64(4), msg.(*protocol.Frame).Sequence)

	conn.deliver(t, frame(5))
	conn.deliver(t, &protocol.Error{Message: "later"})
	waitQueued(t, ch, 6)

	// The next frame is held for the interval; other messages pass.
	msg, ok = ch.TryReceive()
	require.True(t, ok)
	assert.Equal(t, &protocol.Error{Message: "later"}, msg)
	_, ok = ch.TryReceive()
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		msg, ok := ch.TryReceive()
		return ok && msg.(*protocol.Frame).Sequence == 5
	}, 2*time.Second, 10*time.Millisecond)

	ch.SetFrameThrottle(0)
	assert.Equal(t, &protocol.Quality{MinIntervalMS: 0}, conn.nextSent(t))
}

func TestChannel_StatsAndReset(t *testing.T) {
	conn := newPipeConn()
	ch := NewChannel(conn, protocol.JSONCodec{}, 0, nil)
	defer ch.Close()

	conn.deliver(t, frame(1))
	conn.deliver(t, frame(2))
	waitQueued(t, ch, 2)

	s := ch.Stats()
	assert.Equal(t, uint64(2), s.MessagesReceived)
	assert.Positive(t, s.BytesReceived)
	assert.Equal(t, 2, s.Queued)

	ch.TryReceive()
	assert.Equal(t, uint64(2), ch.Stats().MessagesReceived, "receiving does not lower counters")

	ch.ResetCounters()
	s = ch.Stats()
	assert.Zero(t, s.MessagesReceived)
	assert.Zero(t, s.BytesReceived)
	assert.Equal(t, 1, s.Queued)
}

func TestChannel_Close(t *testing.T) {
	conn := newPipeConn()
	ch := NewChannel(conn, protocol.JSONCodec{}, 0, nil)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	<-ch.Done()
	assert.ErrorIs(t, ch.Err(), ErrClosed)
	assert.ErrorIs(t, ch.Send(&protocol.Key{Data: []byte("x")}), ErrClosed)
}

func TestChannel_RemoteHangup(t *testing.T) {
	conn := newPipeConn()
	ch := NewChannel(conn, protocol.JSONCodec{}, 0, nil)

	conn.deliver(t, frame(1))
	close(conn.in)

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close")
	}
	assert.ErrorIs(t, ch.Err(), io.EOF)

	// Messages received before the hangup stay readable.
	msg, ok := ch.TryReceive()
	require.True(t, ok)
	assert.Equal(t, uint64(1), msg.(*protocol.Frame).Sequence)
}

func TestChannel_ProtocolErrorClosesConnection(t *testing.T) {
	conn := newPipeConn()
	ch := NewChannel(conn, protocol.JSONCodec{}, 0, nil)

	conn.in <- []byte(`{"type":"nonsense"}`)

	<-ch.Done()
	assert.True(t, protocol.IsProtocolError(ch.Err()))
	assert.ErrorIs(t, ch.Err(), protocol.ErrUnknownType)
}
