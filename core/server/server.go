package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/eventstream/core/logger"
)

// Server runs an http.Server with graceful shutdown. Safe for concurrent use.
type Server struct {
	mu       sync.RWMutex
	addr     string
	server   *http.Server
	listener net.Listener
	running  bool

	logger         *slog.Logger
	shutdown       time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
	maxHeaderBytes int
	tlsConfig      *tls.Config
	onShutdown     []func()

	// open counts connections that are neither closed nor hijacked.
	open atomic.Int64
}

// New creates a Server for addr. Without options it uses the package
// defaults and discards logs.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		logger:         logger.Discard(),
		shutdown:       DefaultShutdownTimeout,
		readTimeout:    DefaultReadTimeout,
		writeTimeout:   DefaultWriteTimeout,
		idleTimeout:    DefaultIdleTimeout,
		maxHeaderBytes: DefaultMaxHeaderBytes,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Addr returns the bound listener address while running, otherwise the
// configured one. Useful with ":0".
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Connections returns the number of open HTTP connections. Hijacked
// connections, such as WebSocket streams, are not counted.
func (s *Server) Connections() int64 {
	return s.open.Load()
}

// Start listens and serves handler until ctx is done or serving fails.
// It returns ctx.Err() on cancellation without stopping the server; call
// Stop (or use Run) to drain it.
func (s *Server) Start(ctx context.Context, handler http.Handler) error {
	srv, ln, err := s.listen(ctx, handler)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.reset()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) listen(ctx context.Context, handler http.Handler) (*http.Server, net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, nil, ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, nil, err
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	srv := &http.Server{
		Handler:        handler,
		ReadTimeout:    s.readTimeout,
		WriteTimeout:   s.writeTimeout,
		IdleTimeout:    s.idleTimeout,
		MaxHeaderBytes: s.maxHeaderBytes,
		TLSConfig:      s.tlsConfig,
		// Requests keep their values but are not cancelled with ctx; Stop
		// decides when they end.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
		ConnState:   s.trackConn,
		ErrorLog:    slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	for _, fn := range s.onShutdown {
		srv.RegisterOnShutdown(fn)
	}

	s.server = srv
	s.listener = ln
	s.running = true
	return srv, ln, nil
}

func (s *Server) trackConn(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.open.Add(1)
	case http.StateHijacked, http.StateClosed:
		s.open.Add(-1)
	}
}

func (s *Server) reset() {
	s.mu.Lock()
	s.running = false
	s.listener = nil
	s.mu.Unlock()
}

// Stop shuts the server down gracefully within the shutdown timeout.
// Connections still open at the deadline are closed forcibly and the
// deadline error is returned. Stop on a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	s.logger.Info("server shutting down",
		slog.Duration("timeout", s.shutdown),
		slog.Int64("connections", s.open.Load()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("graceful shutdown timed out, closing connections",
			slog.Int64("connections", s.open.Load()))
		err = errors.Join(err, s.server.Close())
	}

	s.running = false
	s.listener = nil

	if err != nil {
		s.logger.Error("server shutdown failed", logger.Error(err))
		return err
	}

	s.logger.Info("server stopped")
	return nil
}

// Run adapts the server to errgroup: it serves until ctx is done, then
// stops gracefully. Cancellation is a clean exit.
func (s *Server) Run(ctx context.Context, handler http.Handler) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start(ctx, handler)
		}()

		var err error
		select {
		case <-ctx.Done():
			err = <-errCh
		case err = <-errCh:
		}

		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if stopErr := s.Stop(); stopErr != nil {
			s.logger.Error("server stop after cancellation failed", logger.Error(stopErr))
		}
		return nil
	}
}
