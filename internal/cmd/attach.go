package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noirtty/noirtty/internal/logger"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/noirtty/noirtty/internal/transport"
	"github.com/noirtty/noirtty/internal/viewer"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var attachFlags struct {
	session   string
	format    string
	insecure  bool
	timeout   time.Duration
	throttle  time.Duration
	maxFrames int
	logFile   string
}

var attachCmd = &cobra.Command{
	Use:   "attach <endpoint>",
	Short: "🔌 Attach this terminal to a session",
	Long: `# 🔌 Attach

**Draw a remote session in this terminal and type into it.**

The endpoint scheme picks the transport: **ws://**, **wss://**, **tcp://** or **quic://**.
A session is created when the id is new or empty.

Press **Ctrl+]** to detach. The session keeps running.

## 💡 Examples

` + "```bash\nnoirtty attach ws://localhost:6369 --session work\nnoirtty attach quic://devbox:6370 --insecure --format binary\n```",
	Args: cobra.ExactArgs(1),
	RunE: runAttach,
}

func init() {
	f := attachCmd.Flags()
	f.StringVarP(&attachFlags.session, "session", "s", "", "Session id (new session when empty)")
	f.StringVar(&attachFlags.format, "format", protocol.FormatBinary, "Wire format: json or binary")
	f.BoolVar(&attachFlags.insecure, "insecure", false, "Skip TLS certificate verification (self-signed QUIC servers)")
	f.DurationVar(&attachFlags.timeout, "timeout", transport.DefaultConnectTimeout, "Connect timeout")
	f.DurationVar(&attachFlags.throttle, "throttle", 0, "Minimum time between frames (slow links)")
	f.IntVar(&attachFlags.maxFrames, "max-frames", transport.DefaultMaxQueuedFrames, "Frames queued before the oldest are dropped (-1 = unlimited)")
	f.StringVar(&attachFlags.logFile, "log-file", "", "Write logs to this file instead of discarding them")
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("attach needs an interactive terminal")
	}

	// The viewer owns the screen, so logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if attachFlags.logFile != "" {
		f, err := os.OpenFile(attachFlags.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	level := logger.ParseLevel(logLevel)
	if logLevel == "" {
		level = logger.GetLogLevelFromEnv(dev)
	}
	logger.ConfigureOutput(level, logOut)

	codec, err := protocol.CodecFor(attachFlags.format)
	if err != nil {
		return err
	}
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read terminal size: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Component("transport")
	ch, err := transport.Connect(ctx, args[0], attachFlags.session, cols, rows, transport.Options{
		Codec:           codec,
		ConnectTimeout:  attachFlags.timeout,
		FrameThrottle:   attachFlags.throttle,
		MaxQueuedFrames: attachFlags.maxFrames,
		Insecure:        attachFlags.insecure,
		Logger:          &log,
	})
	if err != nil {
		return err
	}
	defer ch.Close()

	m, err := viewer.Run(ctx, ch, cols, rows, viewer.DefaultRenderInterval)
	if err != nil {
		return err
	}

	stats := ch.Stats()
	log.Info().
		Uint64("messages", stats.MessagesReceived).
		Uint64("bytes", stats.BytesReceived).
		Msg("viewer closed")

	switch {
	case m.Detached():
		fmt.Fprintf(cmd.OutOrStdout(), "detached from session %s\n", sessionName(m, attachFlags.session))
	case m.Status() != "":
		fmt.Fprintln(cmd.OutOrStdout(), m.Status())
	}
	return nil
}

func sessionName(m *viewer.Model, requested string) string {
	if s := m.Session(); s != "" {
		return s
	}
	return requested
}
