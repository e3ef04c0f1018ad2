// Package session owns spawned shells. A Session runs one shell on a
// pseudo-terminal, interprets its output into a grid and publishes frames
// to subscribed viewers. A Registry maps session ids to live sessions.
package session

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/noirtty/noirtty/internal/ansi"
	"github.com/noirtty/noirtty/internal/grid"
	"github.com/noirtty/noirtty/internal/logger"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/noirtty/noirtty/internal/recovery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultCols          = 80
	DefaultRows          = 24
	DefaultFrameInterval = time.Second / 60

	// NoScrollback disables scrollback when set as Config.Scrollback.
	NoScrollback = -1

	readBufferSize = 32 * 1024
	writeChunkSize = 4 * 1024
	maxPendingReply = 64 * 1024
)

var (
	bracketedPasteStart = []byte("\x1b[200~")
	bracketedPasteEnd   = []byte("\x1b[201~")
)

// Config describes the shell a session runs and how it publishes frames.
type Config struct {
	Shell   string
	Args    []string // nil selects login/interactive flags for the shell
	WorkDir string
	Env     []string // KEY=VALUE pairs added to the server environment
	Cols    int
	Rows    int

	// FrameInterval is the minimum spacing between published frames.
	FrameInterval time.Duration
	// GracePeriod is how long a session survives with no viewers; zero
	// keeps it alive until the shell exits.
	GracePeriod time.Duration
	// Scrollback bounds the retained history rows. Zero selects
	// grid.DefaultScrollback; NoScrollback keeps none.
	Scrollback int
}

func (c Config) withDefaults() Config {
	if c.Cols <= 0 {
		c.Cols = DefaultCols
	}
	if c.Rows <= 0 {
		c.Rows = DefaultRows
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	switch {
	case c.Scrollback == 0:
		c.Scrollback = grid.DefaultScrollback
	case c.Scrollback < 0:
		c.Scrollback = 0
	}
	c.Shell = ResolveShell(c.Shell)
	return c
}

// Info is a point-in-time description of a session.
type Info struct {
	ID           string    `json:"id"`
	Pid          int       `json:"pid"`
	Cols         int       `json:"cols"`
	Rows         int       `json:"rows"`
	Title        string    `json:"title,omitempty"`
	Viewers      int       `json:"viewers"`
	Sequence     uint64    `json:"sequence"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

type Option func(*Session)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithOnExit registers fn to run once after the session has terminated.
func WithOnExit(fn func(*Session)) Option {
	return func(s *Session) { s.onExit = fn }
}

type size struct{ cols, rows int }

// Session is one shell on a pseudo-terminal. The grid is owned by the
// session loop goroutine; every other method communicates with it over
// channels and is safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg    Config
	log    zerolog.Logger
	cmd    *exec.Cmd
	pty    *os.File
	onExit func(*Session)

	inputMu      sync.Mutex // serialises WriteInput callers
	writeMu      sync.Mutex // guards each pty write
	lastActivity atomic.Int64
	bracketed    atomic.Bool
	scrolled     atomic.Bool

	// owned by the loop goroutine
	grid    *grid.Grid
	interp  *ansi.Interpreter
	seq     uint64
	offset  int
	limiter *rate.Limiter

	output  chan []byte
	readErr error
	resize  chan size
	scroll  chan int
	viewers chan struct{}

	replyMu    sync.Mutex
	replies    []byte
	replyReady chan struct{}

	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	lastFrame *protocol.Frame
	cols      int
	rows      int
	title     string
	err       error

	done      chan struct{}
	closeOnce sync.Once
}

// Create spawns cfg.Shell on a new pseudo-terminal and starts the session
// loop. It fails with a *SpawnError when the shell cannot be started.
func Create(ctx context.Context, id string, cfg Config, opts ...Option) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	s := &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		cfg:        cfg,
		log:        logger.Component("session"),
		output:     make(chan []byte, 64),
		resize:     make(chan size),
		scroll:     make(chan int),
		viewers:    make(chan struct{}, 1),
		replyReady: make(chan struct{}, 1),
		subs:       make(map[*Subscription]struct{}),
		cols:       cfg.Cols,
		rows:       cfg.Rows,
		done:       make(chan struct{}),
		limiter:    rate.NewLimiter(rate.Every(cfg.FrameInterval), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("session", id).Logger()

	cmd, ptmx, err := spawn(cfg)
	if err != nil {
		s.log.Error().Err(err).Str("shell", cfg.Shell).Msg("failed to spawn shell")
		return nil, err
	}
	s.cmd = cmd
	s.pty = ptmx
	s.touch()

	s.grid = grid.New(cfg.Cols, cfg.Rows)
	s.grid.SetMaxScrollback(cfg.Scrollback)
	s.interp = ansi.NewInterpreter(s.grid)
	s.interp.SetLogger(s.log)
	s.interp.OnTitle(func(title string) {
		s.mu.Lock()
		s.title = title
		s.mu.Unlock()
	})

	s.log.Info().
		Str("shell", cfg.Shell).
		Int("pid", cmd.Process.Pid).
		Int("cols", cfg.Cols).
		Int("rows", cfg.Rows).
		Msg("session started")

	recovery.SafeGo("pty-reader:"+id, s.readLoop)
	recovery.SafeGo("pty-replies:"+id, s.replyLoop)
	recovery.SafeGoWithCleanup("session-loop:"+id, s.run, func() {
		s.shutdown(ErrSessionClosed)
	})
	return s, nil
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session terminated: nil for a clean shell exit,
// otherwise the error that ended it. It is nil while the session runs.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) Size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// LastFrame returns the most recently published frame, or nil.
func (s *Session) LastFrame() *protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:           s.ID,
		Cols:         s.cols,
		Rows:         s.rows,
		Title:        s.title,
		Viewers:      len(s.subs),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity(),
	}
	if s.lastFrame != nil {
		info.Sequence = s.lastFrame.Sequence
	}
	if s.cmd != nil && s.cmd.Process != nil {
		info.Pid = s.cmd.Process.Pid
	}
	return info
}

// WriteInput forwards p to the shell. Writes are serialised and never
// dropped; a slow shell blocks the caller. Terminal replies queued by the
// session loop are written between chunks of p. A write failure terminates
// the session and is returned as a *PtyIoError.
func (s *Session) WriteInput(p []byte) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	if s.scrolled.Load() {
		// Typing returns the viewport to the live screen.
		select {
		case s.scroll <- 0:
		case <-s.done:
			return ErrSessionClosed
		}
	}

	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	s.touch()
	for len(p) > 0 {
		n := min(len(p), writeChunkSize)
		s.writeMu.Lock()
		_, err := s.pty.Write(p[:n])
		s.writeMu.Unlock()
		if err != nil {
			if s.Closed() {
				return ErrSessionClosed
			}
			perr := &PtyIoError{Op: "write", Err: err}
			s.log.Error().Err(err).Msg("pty write failed")
			s.shutdown(perr)
			return perr
		}
		p = p[n:]
	}
	return nil
}

// WritePaste writes pasted text, wrapped in bracketed paste markers when
// the application has enabled them.
func (s *Session) WritePaste(text string) error {
	if !s.bracketed.Load() {
		return s.WriteInput([]byte(text))
	}
	buf := make([]byte, 0, len(text)+len(bracketedPasteStart)+len(bracketedPasteEnd))
	buf = append(buf, bracketedPasteStart...)
	buf = append(buf, text...)
	buf = append(buf, bracketedPasteEnd...)
	return s.WriteInput(buf)
}

// Resize changes the pseudo-terminal size and then the grid. Content
// outside the new bounds is discarded.
func (s *Session) Resize(cols, rows int) error {
	if cols < 1 || rows < 1 || cols > protocol.MaxDimension || rows > protocol.MaxDimension {
		return ErrInvalidSize
	}
	if s.Closed() {
		return ErrSessionClosed
	}
	if err := pty.Setsize(s.pty, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return &PtyIoError{Op: "resize", Err: err}
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()

	select {
	case s.resize <- size{cols, rows}:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Scroll moves the scrollback viewport by delta rows; positive values move
// back into history.
func (s *Session) Scroll(delta int) error {
	if delta == 0 {
		return nil
	}
	select {
	case s.scroll <- delta:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Close terminates the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.shutdown(ErrSessionClosed)
	return nil
}

func (s *Session) readLoop() {
	defer close(s.output)
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.output <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				s.readErr = &PtyIoError{Op: "read", Err: err}
			}
			return
		}
	}
}

// run is the session loop. It is the only goroutine touching the grid.
func (s *Session) run() {
	flush := time.NewTimer(time.Hour)
	flush.Stop()
	defer flush.Stop()
	pending := false

	grace := time.NewTimer(time.Hour)
	grace.Stop()
	defer grace.Stop()
	s.updateGrace(grace)

	markDirty := func() {
		if pending {
			return
		}
		pending = true
		flush.Reset(s.limiter.Reserve().Delay())
	}

	for {
		// Apply a pending resize before more output so the shell's redraw
		// lands on the new geometry.
		select {
		case sz := <-s.resize:
			s.grid.Resize(sz.cols, sz.rows)
			markDirty()
		default:
		}

		select {
		case data, ok := <-s.output:
			if !ok {
				if s.readErr != nil {
					s.log.Error().Err(s.readErr).Msg("pty read failed")
				} else {
					s.log.Info().Msg("shell exited")
				}
				if pending {
					s.publish()
				}
				s.shutdown(s.readErr)
				return
			}
			s.touch()
			_, _ = s.interp.Write(data)
			s.bracketed.Store(s.grid.Modes().BracketedPaste)
			if resp := s.interp.TakeResponses(); len(resp) > 0 {
				s.reply(resp)
			}
			markDirty()

		case sz := <-s.resize:
			s.grid.Resize(sz.cols, sz.rows)
			markDirty()

		case delta := <-s.scroll:
			offset := 0
			if delta != 0 {
				offset = max(0, min(s.offset+delta, s.grid.ScrollbackLen()))
			}
			if offset != s.offset {
				s.offset = offset
				s.scrolled.Store(offset > 0)
				markDirty()
			}

		case <-flush.C:
			pending = false
			s.publish()

		case <-s.viewers:
			s.updateGrace(grace)

		case <-grace.C:
			if s.viewerCount() == 0 {
				s.log.Info().Dur("grace", s.cfg.GracePeriod).Msg("no viewers, terminating session")
				s.shutdown(ErrIdle)
				return
			}

		case <-s.done:
			return
		}
	}
}

// reply queues device replies for replyLoop. The session loop must keep
// draining output while a blocked input write holds the pty.
func (s *Session) reply(resp []byte) {
	s.replyMu.Lock()
	if len(s.replies)+len(resp) > maxPendingReply {
		s.replyMu.Unlock()
		s.log.Warn().Int("bytes", len(resp)).Msg("terminal reply queue full, dropping reply")
		return
	}
	s.replies = append(s.replies, resp...)
	s.replyMu.Unlock()

	select {
	case s.replyReady <- struct{}{}:
	default:
	}
}

func (s *Session) replyLoop() {
	for {
		select {
		case <-s.replyReady:
		case <-s.done:
			return
		}
		s.replyMu.Lock()
		resp := s.replies
		s.replies = nil
		s.replyMu.Unlock()
		if len(resp) == 0 {
			continue
		}

		s.writeMu.Lock()
		_, err := s.pty.Write(resp)
		s.writeMu.Unlock()
		if err != nil && !s.Closed() {
			s.log.Warn().Err(err).Msg("failed to write terminal reply")
		}
	}
}

func (s *Session) updateGrace(grace *time.Timer) {
	if s.cfg.GracePeriod <= 0 {
		return
	}
	if s.viewerCount() == 0 {
		grace.Reset(s.cfg.GracePeriod)
	} else {
		grace.Stop()
	}
}

func (s *Session) viewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// publish snapshots the grid into the next frame and offers it to every
// subscriber.
func (s *Session) publish() {
	s.seq++
	f := protocol.NewFrame(s.seq, s.grid.ViewSnapshot(s.offset))
	f.AppCursorKeys = s.grid.Modes().AppCursorKeys

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFrame = f
	for sub := range s.subs {
		sub.offer(f)
	}
}

func (s *Session) shutdown(reason error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = reason
		subs := s.subs
		s.subs = nil
		s.mu.Unlock()

		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if s.pty != nil {
			_ = s.pty.Close()
		}
		if s.cmd != nil {
			_ = s.cmd.Wait()
		}
		close(s.done)

		for sub := range subs {
			close(sub.ch)
		}
		s.log.Info().AnErr("reason", reason).Msg("session terminated")
		if s.onExit != nil {
			s.onExit(s)
		}
	})
}

// Subscription delivers a session's frames to one viewer. Delivery is
// latest-wins: a viewer that falls behind skips to the newest frame.
type Subscription struct {
	s  *Session
	ch chan *protocol.Frame
}

// Subscribe registers a viewer. The last published frame, if any, is
// delivered first. The channel is closed when the session terminates.
func (s *Session) Subscribe() (*Subscription, error) {
	sub := &Subscription{s: s, ch: make(chan *protocol.Frame, 1)}

	s.mu.Lock()
	if s.subs == nil {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.subs[sub] = struct{}{}
	if s.lastFrame != nil {
		sub.ch <- s.lastFrame
	}
	s.mu.Unlock()

	s.signalViewers()
	return sub, nil
}

// Frames returns the delivery channel.
func (sub *Subscription) Frames() <-chan *protocol.Frame { return sub.ch }

// Close unsubscribes. It is safe to call more than once and after the
// session has terminated.
func (sub *Subscription) Close() {
	s := sub.s
	s.mu.Lock()
	_, ok := s.subs[sub]
	if ok {
		delete(s.subs, sub)
		close(sub.ch)
	}
	s.mu.Unlock()
	if ok {
		s.signalViewers()
	}
}

// offer replaces any undelivered frame with f. Callers hold s.mu.
func (sub *Subscription) offer(f *protocol.Frame) {
	select {
	case sub.ch <- f:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- f:
	default:
	}
}

func (s *Session) signalViewers() {
	select {
	case s.viewers <- struct{}{}:
	default:
	}
}
