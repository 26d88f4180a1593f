package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CandlePull/pkg/http/middleware"
	applogger "CandlePull/pkg/logger"
)

type serverOptions struct {
	host            string
	port            int
	read, write     time.Duration
	shutdownTimeout time.Duration
	slow            time.Duration
	cors            bool
	metrics         bool
}

type ServerOption func(*serverOptions)

func WithHost(host string) ServerOption {
	return func(o *serverOptions) { o.host = host }
}

// WithPort sets the listen port. Zero picks a free one.
func WithPort(port int) ServerOption {
	return func(o *serverOptions) { o.port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.read, o.write, o.shutdownTimeout = read, write, shutdown
	}
}

// WithSlowThreshold sets the latency above which requests are logged as slow.
func WithSlowThreshold(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.slow = d }
}

func WithCORS(enabled bool) ServerOption {
	return func(o *serverOptions) { o.cors = enabled }
}

// WithMetricsEndpoint toggles GET /metrics.
func WithMetricsEndpoint(enabled bool) ServerOption {
	return func(o *serverOptions) { o.metrics = enabled }
}

// Server is the echo instance plus the listener it serves on.
type Server struct {
	echo *echo.Echo
	opts serverOptions
	log  *applogger.Logger
	ln   net.Listener
}

func NewServer(handler Handler, l *applogger.Logger, opts ...ServerOption) *Server {
	o := serverOptions{
		host:            "0.0.0.0",
		port:            8080,
		read:            10 * time.Second,
		write:           10 * time.Second,
		shutdownTimeout: 10 * time.Second,
		slow:            2 * time.Second,
		cors:            true,
		metrics:         true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if l == nil {
		l = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.Server.ReadTimeout = o.read
	e.Server.WriteTimeout = o.write

	e.Use(
		middleware.Recover(l),
		middleware.RequestLogging(l),
		middleware.Metrics(l, o.slow),
	)
	if o.cors {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if o.metrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	return &Server{echo: e, opts: o, log: l}
}

// Start binds the listener, so address errors surface here, then serves
// in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.opts.host, strconv.Itoa(s.opts.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.echo.Listener = ln

	go func() {
		s.log.Info("http server listening", applogger.String("addr", ln.Addr().String()))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", applogger.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Addr is the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return net.JoinHostPort(s.opts.host, strconv.Itoa(s.opts.port))
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
