package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danmuck/ingressd/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

// StatusFunc returns a JSON-serializable snapshot for /status.
type StatusFunc func() any

// Server exposes health, readiness, status and metrics over HTTP.
type Server struct {
	Addr     string
	Appeared time.Time

	router *gin.Engine
	status StatusFunc
	ready  atomic.Bool
}

func New(addr string, status StatusFunc) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())

	s := &Server{
		Addr:     addr,
		Appeared: time.Now(),
		router:   r,
		status:   status,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.ready.Load()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Appeared).String(),
			"version": version,
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		if s.status == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, s.status())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// SetReady flips the /ready response.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Listen binds Addr without serving it.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return nil, fmt.Errorf("admin: listen %s: %w", s.Addr, err)
	}
	return ln, nil
}

// Serve listens on Addr and blocks until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := s.Listen(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		s.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info().Str("addr", ln.Addr().String()).Msg("admin endpoint listening")
	s.SetReady(true)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
