// Package server assembles the HTTP app and stream listeners around one
// session registry.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	_ "github.com/noirtty/noirtty/docs" // swagger docs
	"github.com/noirtty/noirtty/internal/config"
	"github.com/noirtty/noirtty/internal/handlers"
	"github.com/noirtty/noirtty/internal/logger"
	"github.com/noirtty/noirtty/internal/session"
	"github.com/noirtty/noirtty/internal/transport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Server owns the registry and every listener.
type Server struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *session.Registry
	app      *fiber.App
	pty      *handlers.PTYHandler

	httpLn net.Listener
	tcpLn  transport.Listener
	quicLn transport.Listener
}

// New builds the fiber app and registers routes. Nothing listens until
// Listen is called.
func New(cfg *config.Config) *Server {
	log := logger.Component("server")
	registry := session.NewRegistry(cfg.SessionConfig(),
		session.WithLogger(logger.Component("session")))

	s := &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		pty:      handlers.NewPTYHandler(registry),
	}
	s.app = s.newApp()
	return s
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "noirtty",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(handlers.AccessLogger(handlers.AccessLogConfig{
		SampledPaths: []string{"/health"},
	}))

	sessions := handlers.NewSessionsHandler(s.registry)
	app.Get("/health", sessions.Health)
	app.Get("/swagger/*", swagger.HandlerDefault)

	v1 := app.Group("/v1")
	s.pty.RegisterRoutes(v1)
	sessions.RegisterRoutes(v1)
	return app
}

// App exposes the fiber app for in-process requests.
func (s *Server) App() *fiber.App { return s.app }

// Registry returns the session registry shared by every listener.
func (s *Server) Registry() *session.Registry { return s.registry }

// Listen binds every configured address. On error nothing stays bound.
func (s *Server) Listen() error {
	var err error
	defer func() {
		if err != nil {
			s.closeListeners()
		}
	}()

	if s.cfg.HTTPAddr != "" {
		if s.httpLn, err = net.Listen("tcp", s.cfg.HTTPAddr); err != nil {
			return fmt.Errorf("listen http: %w", err)
		}
	}
	if s.cfg.TCPAddr != "" {
		if s.tcpLn, err = transport.ListenTCP(s.cfg.TCPAddr); err != nil {
			return fmt.Errorf("listen tcp: %w", err)
		}
	}
	if s.cfg.QUICAddr != "" {
		var tlsConf *tls.Config
		if tlsConf, err = s.tlsConfig(); err != nil {
			return err
		}
		if s.quicLn, err = transport.ListenQUIC(s.cfg.QUICAddr, tlsConf); err != nil {
			return fmt.Errorf("listen quic: %w", err)
		}
	}
	return nil
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	if s.cfg.TLSCert != "" {
		return transport.LoadTLS(s.cfg.TLSCert, s.cfg.TLSKey)
	}
	host, _, err := net.SplitHostPort(s.cfg.QUICAddr)
	if err != nil {
		return nil, fmt.Errorf("quic address: %w", err)
	}
	s.log.Warn().Msg("no TLS certificate configured, using a self-signed one for QUIC")
	return transport.SelfSignedTLS("localhost", host)
}

// Addrs reports the bound addresses by name: http, tcp and quic.
func (s *Server) Addrs() map[string]net.Addr {
	addrs := make(map[string]net.Addr, 3)
	if s.httpLn != nil {
		addrs["http"] = s.httpLn.Addr()
	}
	if s.tcpLn != nil {
		addrs["tcp"] = s.tcpLn.Addr()
	}
	if s.quicLn != nil {
		addrs["quic"] = s.quicLn.Addr()
	}
	return addrs
}

// Serve runs until ctx is cancelled or a listener fails, then disconnects
// viewers and terminates every session.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.httpLn != nil {
		s.log.Info().Str("addr", s.httpLn.Addr().String()).Msg("serving http and websocket")
		g.Go(func() error {
			if err := s.app.Listener(s.httpLn); err != nil && !errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
	}
	for _, ln := range []transport.Listener{s.tcpLn, s.quicLn} {
		if ln == nil {
			continue
		}
		g.Go(func() error {
			return s.pty.ServeStream(ln)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		s.log.Debug().Err(err).Msg("listener error during shutdown")
		err = nil
	}
	return err
}

func (s *Server) shutdown() {
	s.log.Info().Int("sessions", s.registry.Len()).Msg("shutting down")
	s.pty.Shutdown()
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown")
	}
	s.closeListeners()
	s.registry.CloseAll()
}

func (s *Server) closeListeners() {
	if s.tcpLn != nil {
		_ = s.tcpLn.Close()
	}
	if s.quicLn != nil {
		_ = s.quicLn.Close()
	}
	if s.httpLn != nil {
		_ = s.httpLn.Close()
	}
}
