package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the configuration API, health checks and metrics.
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	engine          *gin.Engine
	logger          zerolog.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds the router. gatherer may be nil to leave /metrics out.
func NewServer(addr string, shutdownTimeout time.Duration, handler *GeofenceHandler, health *HealthChecker,
	gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	if health != nil {
		health.Register(r)
	}
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	handler.Register(r.Group("/api/v1"))

	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &Server{
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		engine:          r,
		logger:          logger,
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		s.logger.Warn().Msg("HTTP server is already running")
		return errors.New("http server is already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func(srv *http.Server) {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}(s.srv)

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server started")
	return nil
}

// Stop shuts the server down, waiting for in-flight requests up to the shutdown timeout.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		s.logger.Warn().Msg("HTTP server is not running")
		return errors.New("http server is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	s.wg.Wait()

	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Msg("HTTP server shutdown failed")
		return err
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
