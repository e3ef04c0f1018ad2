package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noirtty/noirtty/internal/config"
	"github.com/noirtty/noirtty/internal/grid"
	"github.com/noirtty/noirtty/internal/logger"
	"github.com/noirtty/noirtty/internal/server"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	httpAddr      string
	tcpAddr       string
	quicAddr      string
	tlsCert       string
	tlsKey        string
	shell         string
	workDir       string
	frameInterval time.Duration
	gracePeriod   time.Duration
	scrollback    int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "🚀 Run the session server",
	Long: `# 🚀 Serve

**Host shell sessions and stream them to viewers.**

The HTTP listener serves the WebSocket endpoint **/v1/pty** and the REST API.
TCP and QUIC listeners are off unless an address is given.

## 💡 Examples

Listen on every interface:
` + "```bash\nnoirtty serve --http 0.0.0.0:6369\n```" + `

Add QUIC with a real certificate:
` + "```bash\nnoirtty serve --quic :6370 --tls-cert cert.pem --tls-key key.pem\n```",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.httpAddr, "http", "", "HTTP/WebSocket listen address")
	f.StringVar(&serveFlags.tcpAddr, "tcp", "", "TCP stream listen address")
	f.StringVar(&serveFlags.quicAddr, "quic", "", "QUIC listen address")
	f.StringVar(&serveFlags.tlsCert, "tls-cert", "", "TLS certificate for QUIC (PEM)")
	f.StringVar(&serveFlags.tlsKey, "tls-key", "", "TLS key for QUIC (PEM)")
	f.StringVar(&serveFlags.shell, "shell", "", "Shell to spawn (default $SHELL)")
	f.StringVar(&serveFlags.workDir, "workdir", "", "Working directory for new sessions")
	f.DurationVar(&serveFlags.frameInterval, "frame-interval", 0, "Minimum time between frames of one session")
	f.DurationVar(&serveFlags.gracePeriod, "grace-period", 0, "How long a session outlives its last viewer (0 = until the shell exits)")
	f.IntVar(&serveFlags.scrollback, "scrollback", grid.DefaultScrollback, "Scrollback rows kept per session (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig merges the config file, environment and changed flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	strs := map[string]*string{
		"http":     &cfg.HTTPAddr,
		"tcp":      &cfg.TCPAddr,
		"quic":     &cfg.QUICAddr,
		"tls-cert": &cfg.TLSCert,
		"tls-key":  &cfg.TLSKey,
		"shell":    &cfg.Shell,
		"workdir":  &cfg.WorkDir,
	}
	for name, field := range strs {
		if f.Changed(name) {
			*field, _ = f.GetString(name)
		}
	}
	if f.Changed("frame-interval") {
		cfg.FrameInterval = serveFlags.frameInterval
	}
	if f.Changed("grace-period") {
		cfg.GracePeriod = serveFlags.gracePeriod
	}
	if f.Changed("scrollback") {
		cfg.Scrollback = serveFlags.scrollback
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if dev && logLevel == "" {
		level = logger.GetLogLevelFromEnv(dev)
	}
	logger.Configure(level, dev)
	logger.Infof("starting noirtty server (%s mode)", cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg)
	if err := srv.Listen(); err != nil {
		return err
	}
	for name, addr := range srv.Addrs() {
		logger.Infof("%s listening on %s", name, addr)
	}
	return srv.Serve(ctx)
}
