package ingress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/ingressd/internal/admin"
	"github.com/danmuck/ingressd/internal/config"
	"github.com/danmuck/ingressd/internal/observability"
	"github.com/danmuck/ingressd/internal/protocol/frame"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// FrameHandler receives every complete frame read from a peer. It runs on
// the connection's goroutine.
type FrameHandler func(remote string, f frame.Frame)

// ServiceConfig configures the listener side of the ingress service.
type ServiceConfig struct {
	ListenAddr string
	Backoff    BackoffConfig
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr: config.DefaultBindAddr,
		Backoff:    DefaultBackoffConfig(),
	}
}

// Status is a point-in-time view of the acceptor.
type Status struct {
	ListenAddr     string `json:"listen_addr"`
	Active         int64  `json:"active_connections"`
	Accepted       uint64 `json:"accepted_total"`
	MaxConnections int    `json:"max_connections"`
}

type Option func(*Service)

func WithFrameHandler(h FrameHandler) Option {
	return func(s *Service) {
		if h != nil {
			s.handler = h
		}
	}
}

// Service is the acceptor: it owns the listening socket and spawns one
// goroutine per accepted connection.
type Service struct {
	cfg      ServiceConfig
	settings *config.Settings
	handler  FrameHandler

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
	addr    string

	active   atomic.Int64
	accepted atomic.Uint64
	handlers sync.WaitGroup

	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(cfg ServiceConfig, settings *config.Settings, opts ...Option) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	if settings == nil {
		defaults := config.DefaultSettings()
		settings = &defaults
	}
	s := &Service{
		cfg:      cfg,
		settings: settings,
		handler:  logFrame,
		conns:    make(map[net.Conn]struct{}),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run binds, serves, and blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext binds the admin endpoint (when configured) and then the
// listener, and serves both until ctx is done. Only bind failures are
// returned; the admin endpoint failing later never stops the accept loop.
func (s *Service) RunContext(ctx context.Context) error {
	var (
		srv     *admin.Server
		adminLn net.Listener
	)
	if addr := strings.TrimSpace(s.settings.AdminAddr); addr != "" {
		srv = admin.New(addr, func() any { return s.Status() })
		var err error
		if adminLn, err = srv.Listen(ctx); err != nil {
			return err
		}
	}

	ln, err := s.Listen(ctx)
	if err != nil {
		if adminLn != nil {
			_ = adminLn.Close()
		}
		return err
	}
	log.Info().
		Str("addr", ln.Addr().String()).
		Int("max_connections", s.settings.MaxConnections).
		Int("recv_buffer", s.settings.RecvBufferSize).
		Bool("nodelay", s.settings.NoDelay).
		Msg("ingress listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(gctx, ln)
	})
	if srv != nil {
		g.Go(func() error {
			serveAdmin(gctx, srv, adminLn)
			return nil
		})
	}
	return g.Wait()
}

func serveAdmin(ctx context.Context, srv *admin.Server, ln net.Listener) {
	if err := srv.ServeListener(ctx, ln); err != nil {
		log.Error().Err(err).Str("addr", ln.Addr().String()).Msg("admin endpoint stopped")
	}
}

// Listen binds the configured address.
func (s *Service) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrBind, s.cfg.ListenAddr, err)
	}
	return ln, nil
}

// Serve runs the accept loop on an existing listener until ctx is done or
// the listener is closed. Accept failures are classified, logged, and
// retried after a fixed pause; they never end the loop. Serve returns only
// after every connection it accepted has been closed and torn down.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.connsMu.Lock()
	s.addr = ln.Addr().String()
	s.connsMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.closeAllConns()
		_ = ln.Close()
	})
	defer stop()
	defer s.drain()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay, class := s.cfg.Backoff.AcceptDelay(err)
			observability.RecordAcceptError(class)
			if class == observability.AcceptErrorResourceExhaustion {
				log.Warn().Err(err).Dur("pause", delay).Msg("open file limit reached, pausing accept")
			} else {
				log.Error().Err(err).Dur("pause", delay).Msg("accept failed")
			}
			if err := s.sleep(ctx, delay); err != nil {
				return nil
			}
			continue
		}

		s.accepted.Add(1)
		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("new connection")
		if !s.trackConn(conn) {
			_ = conn.Close()
			return nil
		}
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Service) drain() {
	s.closeAllConns()
	s.handlers.Wait()
}

// Status reports the listener address and connection counters.
func (s *Service) Status() Status {
	s.connsMu.Lock()
	addr := s.addr
	s.connsMu.Unlock()
	return Status{
		ListenAddr:     addr,
		Active:         s.active.Load(),
		Accepted:       s.accepted.Load(),
		MaxConnections: s.settings.MaxConnections,
	}
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer s.untrackConn(conn)

	c := NewConnection(conn, s.settings)
	remote := c.RemoteAddr()
	active := s.active.Add(1)
	observability.RecordAccepted()
	if limit := int64(s.settings.MaxConnections); limit > 0 && active > limit {
		log.Warn().Int64("active", active).Int64("max_connections", limit).Msg("active connections above configured maximum")
	}

	err := s.serveConn(c, remote)
	remaining := s.active.Add(-1)
	reason := closeReason(ctx, err)
	observability.RecordClosed(reason)

	switch reason {
	case observability.CloseClean, observability.CloseShutdown:
		log.Debug().Str("remote", remote).Str("reason", reason).Int64("active", remaining).Msg("connection closed")
	default:
		log.Warn().Err(err).Str("remote", remote).Str("reason", reason).Int64("active", remaining).Msg("connection terminated")
	}
}

func (s *Service) serveConn(c *Connection, remote string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingress: frame handler panic: %v", r)
		}
	}()
	return c.Serve(func(f frame.Frame) {
		s.handler(remote, f)
	})
}

func closeReason(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return observability.CloseClean
	case ctx.Err() != nil:
		return observability.CloseShutdown
	case errors.Is(err, ErrConnectionReset):
		return observability.CloseReset
	case errors.Is(err, frame.ErrMalformed):
		return observability.CloseMalformed
	case errors.Is(err, frame.ErrFrameTooLarge):
		return observability.CloseTooLarge
	default:
		return observability.CloseTransport
	}
}

func logFrame(remote string, f frame.Frame) {
	log.Debug().
		Str("remote", remote).
		Uint8("header", f.Header()).
		Int("size", f.Len()).
		Msg("frame received")
}

func (s *Service) trackConn(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
	_ = conn.Close()
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.closing = true
	for conn := range s.conns {
		_ = conn.Close()
	}
}
