// Package server accepts flux-cache client connections and runs one
// session per connection against the store.
//
// Each session has a reader goroutine (decode, dispatch, enqueue) and a
// writer goroutine (flush). Response bytes are charged to a per-session
// budget that is released only after they are flushed, so a client that
// stops reading responses stops being read.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/fluxcache/protocol"
)

// DefaultAddr is the listen address used when Config.Addr is empty.
const DefaultAddr = "127.0.0.1:6214"

// Config holds the server configuration. Zero durations and sizes take the
// defaults from DefaultConfig.
type Config struct {
	// Addr is the TCP listen address.
	Addr string
	// MaxConns caps concurrent sessions; 0 means unlimited.
	MaxConns int
	// ReadTimeout bounds reading one request once its first byte arrived.
	// Helps prevent slowloris attacks.
	ReadTimeout time.Duration
	// IdleTimeout bounds the wait for the next request.
	IdleTimeout time.Duration
	// WriteTimeout bounds each flush to the client.
	WriteTimeout time.Duration
	// MaxPendingBytes is the per-session budget of queued, unflushed
	// response bytes.
	MaxPendingBytes int64
	// RateLimit is the sustained requests per second per connection;
	// 0 disables rate limiting. RateBurst defaults to ceil(RateLimit).
	RateLimit float64
	RateBurst int
	// SocketBufferBytes sizes the kernel send/receive buffers of accepted
	// TCP connections; 0 keeps the OS default.
	SocketBufferBytes int
	// DrainTimeout bounds graceful shutdown before connections are
	// force-closed.
	DrainTimeout time.Duration
	// Limits bound request frames.
	Limits protocol.Limits

	Logger  *slog.Logger
	Metrics Metrics
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            DefaultAddr,
		ReadTimeout:     30 * time.Second,
		IdleTimeout:     5 * time.Minute,
		WriteTimeout:    30 * time.Second,
		MaxPendingBytes: 4 << 20,
		DrainTimeout:    10 * time.Second,
		Limits:          protocol.DefaultLimits,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxPendingBytes <= 0 {
		c.MaxPendingBytes = d.MaxPendingBytes
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = max(1, int(c.RateLimit+0.999))
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Server represents the flux-cache protocol server.
type Server struct {
	cfg      Config
	store    Store
	log      *slog.Logger
	metrics  Metrics
	handlers map[protocol.Verb]handlerFunc

	mu       sync.Mutex
	ln       net.Listener
	sessions map[*session]struct{}
	shutting bool

	wg     sync.WaitGroup
	active atomic.Int64
}

// New creates a server dispatching to store.
func New(store Store, cfg Config) (*Server, error) {
	if store == nil {
		return nil, errors.New("server: store is required")
	}
	if cfg.MaxConns < 0 || cfg.RateLimit < 0 || cfg.SocketBufferBytes < 0 {
		return nil, errors.New("server: negative limits are not allowed")
	}
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:      cfg,
		store:    store,
		log:      cfg.Logger.With("component", "server"),
		metrics:  cfg.Metrics,
		sessions: make(map[*session]struct{}),
	}
	s.registerHandlers()
	return s, nil
}

// Listen binds the configured address. Bind failures are startup failures,
// so callers listen before starting anything else.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return ln, nil
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen(ctx)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Addr returns the listener address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections on ln until ctx is done or Shutdown is called.
// It returns nil in both cases. Sessions keep running after Serve returns;
// Shutdown drains them.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.shutting {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info("serving", "addr", ln.Addr().String())
	return s.acceptLoop(ctx, ln)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var delay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isShutting() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Transient failures (EMFILE and friends) must not kill the server.
			delay = nextBackoff(delay)
			s.log.Warn("accept failed", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0

		if s.cfg.MaxConns > 0 && s.active.Load() >= int64(s.cfg.MaxConns) {
			go s.reject(c)
			continue
		}
		s.tune(c)
		go s.ServeConn(c)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(2*d, time.Second)
}

// ServeConn runs a session on an already accepted connection and blocks
// until the session ends. The connection is closed on return.
func (s *Server) ServeConn(c net.Conn) {
	sess := newSession(s, c)
	if !s.track(sess) {
		_ = c.Close()
		return
	}
	defer s.untrack(sess)
	sess.run()
}

// Shutdown stops accepting, wakes idle sessions and waits for in-flight
// requests to be answered. After DrainTimeout (or when ctx ends, whichever
// is first) remaining connections are force-closed and the timeout is
// returned.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
	defer cancel()

	s.mu.Lock()
	s.shutting = true
	ln := s.ln
	for sess := range s.sessions {
		sess.drain()
	}
	s.mu.Unlock()

	var firstErr error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			firstErr = err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return firstErr
	case <-ctx.Done():
	}

	s.mu.Lock()
	s.log.Warn("drain timed out, closing connections", "remaining", len(s.sessions))
	for sess := range s.sessions {
		sess.forceClose()
	}
	s.mu.Unlock()
	<-done
	return fmt.Errorf("server: drain: %w", ctx.Err())
}

// ActiveConns reports the number of live sessions.
func (s *Server) ActiveConns() int64 { return s.active.Load() }

// ---- helpers ----

func (s *Server) isShutting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutting
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutting {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	s.active.Add(1)
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.active.Add(-1)
	s.wg.Done()
}

// reject answers a connection over the MaxConns limit and closes it.
// reject answers an over-limit connection and closes it. It runs on its
// own goroutine; the write is bounded by a one second deadline.
func (s *Server) reject(c net.Conn) {
	s.metrics.ConnRejected()
	s.log.Warn("connection limit reached", "remote", c.RemoteAddr().String(), "max_conns", s.cfg.MaxConns)
	_ = c.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = c.Write(protocol.AppendResponse(nil, protocol.StatusError, []byte("too many connections")))
	_ = c.Close()
}

// tune applies socket options to TCP connections.
func (s *Server) tune(c net.Conn) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(true)
	if n := s.cfg.SocketBufferBytes; n > 0 {
		if err := tc.SetReadBuffer(n); err != nil {
			s.log.Debug("set receive buffer", "error", err)
		}
		if err := tc.SetWriteBuffer(n); err != nil {
			s.log.Debug("set send buffer", "error", err)
		}
	}
}
