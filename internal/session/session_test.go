package session

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/noirtty/noirtty/internal/grid"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellConfig(t *testing.T, args ...string) Config {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	cfg := Config{Shell: "/bin/sh", Cols: 80, Rows: 24, Env: []string{"PS1=$ "}}
	if len(args) > 0 {
		cfg.Args = args
	}
	return cfg
}

func screenText(s *Session) string {
	f := s.LastFrame()
	if f == nil {
		return ""
	}
	return f.Snapshot().Text()
}

func TestSession_EchoRoundTrip(t *testing.T) {
	s, err := Create(context.Background(), "echo", shellConfig(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteInput([]byte("echo $((40+2))\n")))

	require.Eventually(t, func() bool {
		return strings.Contains(screenText(s), "\n42")
	}, 5*time.Second, 20*time.Millisecond, "screen: %q", screenText(s))

	info := s.Info()
	assert.Equal(t, "echo", info.ID)
	assert.Positive(t, info.Pid)
	assert.Positive(t, info.Sequence)
}

func TestSession_SubscribeReceivesFrames(t *testing.T) {
	s, err := Create(context.Background(), "sub", shellConfig(t, "-c", "printf ready; sleep 5"))
	require.NoError(t, err)
	defer s.Close()

	sub, err := s.Subscribe()
	require.NoError(t, err)
	defer sub.Close()

	var last *protocol.Frame
	deadline := time.After(5 * time.Second)
	for last == nil || !strings.Contains(last.Snapshot().RowText(0), "ready") {
		select {
		case f, ok := <-sub.Frames():
			require.True(t, ok, "subscription closed early")
			if last != nil {
				assert.Greater(t, f.Sequence, last.Sequence)
			}
			last = f
		case <-deadline:
			t.Fatal("no frame with output")
		}
	}
	assert.Equal(t, 1, s.Info().Viewers)

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, s.Info().Viewers)
}

func TestSession_ShellExit(t *testing.T) {
	s, err := Create(context.Background(), "exit", shellConfig(t, "-c", "exit 0"))
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate after shell exit")
	}
	assert.NoError(t, s.Err())
	assert.ErrorIs(t, s.WriteInput([]byte("x")), ErrSessionClosed)

	_, err = s.Subscribe()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_Resize(t *testing.T) {
	s, err := Create(context.Background(), "resize", shellConfig(t, "-c", "sleep 5"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Resize(40, 10))
	cols, rows := s.Size()
	assert.Equal(t, 40, cols)
	assert.Equal(t, 10, rows)

	require.Eventually(t, func() bool {
		f := s.LastFrame()
		return f != nil && f.Cols == 40 && f.Rows == 10 && len(f.Cells) == 400
	}, 5*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, s.Resize(0, 10), ErrInvalidSize)
	assert.ErrorIs(t, s.Resize(10, protocol.MaxDimension+1), ErrInvalidSize)
}

func TestSession_SpawnError(t *testing.T) {
	_, err := Create(context.Background(), "bad", Config{Shell: "/nonexistent/shell"})
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "/nonexistent/shell", spawnErr.Shell)

	cfg := shellConfig(t)
	cfg.WorkDir = "/nonexistent/dir"
	_, err = Create(context.Background(), "bad", cfg)
	assert.ErrorAs(t, err, &spawnErr)
}

func TestSession_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Create(ctx, "canceled", shellConfig(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_GracePeriodWithoutViewers(t *testing.T) {
	cfg := shellConfig(t, "-c", "sleep 5")
	cfg.GracePeriod = 50 * time.Millisecond

	exited := make(chan struct{})
	s, err := Create(context.Background(), "idle", cfg, WithOnExit(func(*Session) { close(exited) }))
	require.NoError(t, err)

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("idle session was not terminated")
	}
	assert.ErrorIs(t, s.Err(), ErrIdle)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	calls := 0
	s, err := Create(context.Background(), "close", shellConfig(t, "-c", "sleep 5"),
		WithOnExit(func(*Session) { calls++ }))
	require.NoError(t, err)

	sub, err := s.Subscribe()
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	<-s.Done()
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, s.Err(), ErrSessionClosed)

	// The subscription channel is closed once any pending frame is drained.
	for range sub.Frames() {
	}
	sub.Close()
}

func TestSubscription_LatestWins(t *testing.T) {
	sub := &Subscription{ch: make(chan *protocol.Frame, 1)}
	for seq := uint64(1); seq <= 3; seq++ {
		sub.offer(&protocol.Frame{Sequence: seq})
	}
	f := <-sub.ch
	assert.Equal(t, uint64(3), f.Sequence)
	assert.Empty(t, sub.ch)
}

func TestShellArgs(t *testing.T) {
	assert.Equal(t, []string{"-l", "-i"}, ShellArgs("/bin/zsh"))
	assert.Equal(t, []string{"-l", "-i"}, ShellArgs("/usr/bin/bash"))
	assert.Equal(t, []string{"-i"}, ShellArgs("/bin/sh"))
	assert.Nil(t, ShellArgs("/usr/bin/python3"))
}

func TestResolveShell(t *testing.T) {
	assert.Equal(t, "/opt/shell", ResolveShell("/opt/shell"))

	t.Setenv("SHELL", "/nonexistent/shell")
	got := ResolveShell("")
	assert.NotEqual(t, "/nonexistent/shell", got)
	assert.NotEmpty(t, got)
}

func TestShellEnv(t *testing.T) {
	env := shellEnv([]string{"FOO=bar", "TERM=dumb", "malformed"})
	assert.Contains(t, env, "FOO=bar")
	assert.Contains(t, env, "TERM=dumb")
	assert.Contains(t, env, "COLORTERM=truecolor")
	assert.NotContains(t, env, "malformed")
}

func TestSession_RepliesDoNotStallOutputWhileInputBlocks(t *testing.T) {
	// The shell never reads stdin, asks for the cursor position, then keeps
	// printing.
	script := `sleep 1; printf '\033[6n'; i=0; while :; do i=$((i+1)); echo tick$i; sleep 0.05; done`
	s, err := Create(context.Background(), "dsr", shellConfig(t, "-c", script))
	require.NoError(t, err)
	defer s.Close()

	go func() {
		_ = s.WriteInput([]byte(strings.Repeat("x", 1<<20)))
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(screenText(s), "tick30")
	}, 10*time.Second, 50*time.Millisecond, "screen: %q", screenText(s))
}

func TestConfig_ScrollbackDefaults(t *testing.T) {
	assert.Equal(t, grid.DefaultScrollback, Config{}.withDefaults().Scrollback)
	assert.Equal(t, 0, Config{Scrollback: NoScrollback}.withDefaults().Scrollback)
	assert.Equal(t, 200, Config{Scrollback: 200}.withDefaults().Scrollback)
}
