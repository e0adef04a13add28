package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/sufield/mvrp/internal/adapters/logging"
	"github.com/sufield/mvrp/internal/adapters/secondary/trust"
	"github.com/sufield/mvrp/internal/core/domain"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
	"github.com/sufield/mvrp/internal/core/ports"
	"github.com/sufield/mvrp/internal/wire"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// ServerOptions are the resources a Server owns. Address and Trust are
// required.
type ServerOptions struct {
	Address string
	Trust   *trust.Context
	Framer  wire.Framer
	// Handler defaults to the fixed method dispatcher.
	Handler ports.Handler
	Logger  *slog.Logger
	Metrics ports.ServerMetrics

	// MaxConnections bounds in-flight connections. Zero means unbounded.
	MaxConnections int

	// Zero timeouts are not enforced.
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// Stats is a snapshot of the server's connection counters.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Active   int64  `json:"active"`
	Served   uint64 `json:"served"`
	Failed   uint64 `json:"failed"`
}

// Server accepts MVRP connections and answers one request on each.
type Server struct {
	opts      ServerOptions
	tlsConfig *tls.Config
	logger    *slog.Logger
	metrics   ports.ServerMetrics
	handler   ports.Handler
	slots     chan struct{}

	wg conc.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	closing  bool
	// closed is closed together with the listener.
	closed chan struct{}
	// loopDone is closed when the accept loop exits.
	loopDone chan struct{}

	accepted atomic.Uint64
	active   atomic.Int64
	served   atomic.Uint64
	failed   atomic.Uint64
}

// NewServer validates opts and returns a server ready to Serve.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Address == "" {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "server address is required")
	}
	if opts.Trust == nil {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "server trust context is required")
	}
	if opts.Trust.Role() != domain.RoleServer {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "server needs a server trust context, got %s", opts.Trust.Role())
	}
	if opts.MaxConnections < 0 {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "max connections cannot be negative: %d", opts.MaxConnections)
	}
	s := &Server{
		opts:      opts,
		tlsConfig: opts.Trust.Config(),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		handler:   opts.Handler,
		closed:    make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.metrics == nil {
		s.metrics = ports.NoopMetrics{}
	}
	if s.handler == nil {
		s.handler = domain.DispatchHandler{}
	}
	if opts.MaxConnections > 0 {
		s.slots = make(chan struct{}, opts.MaxConnections)
	}
	return s, nil
}

// ListenAndServe binds the configured address and serves on it.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Address)
	if err != nil {
		return mvrperrors.Wrapf(mvrperrors.ErrIO, err, "listen on %s", s.opts.Address)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ln is closed, ctx is cancelled or
// Shutdown is called. Each connection is handled on its own goroutine and
// its failure never stops the loop. Serve closes ln before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	if s.listener != nil {
		s.mu.Unlock()
		return mvrperrors.Newf(mvrperrors.ErrConfig, "server is already serving on %s", s.listener.Addr())
	}
	s.listener = ln
	s.loopDone = make(chan struct{})
	defer close(s.loopDone)
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.closeListener)
	defer stop()
	defer s.closeListener()

	s.logger.Info("MVRP server listening",
		"address", ln.Addr().String(),
		"subject", s.opts.Trust.Subject(),
		"max_connections", s.opts.MaxConnections)

	var backoff time.Duration
	for {
		raw, err := ln.Accept()
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = nextBackoff(backoff)
			s.logger.Warn("accept failed, retrying", "error", err.Error(), "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		if !s.acquire(ctx) {
			_ = raw.Close()
			return nil
		}
		s.accepted.Add(1)
		s.wg.Go(func() { s.handle(ctx, raw) })
	}
}

// Shutdown stops accepting and waits for in-flight connections to finish or
// for ctx to end, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeListener()

	s.mu.Lock()
	loopDone := s.loopDone
	s.mu.Unlock()
	if loopDone != nil {
		select {
		case <-loopDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("MVRP server stopped", "served", s.served.Load(), "failed", s.failed.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr is the address being served, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats returns a snapshot of the connection counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Active:   s.active.Load(),
		Served:   s.served.Load(),
		Failed:   s.failed.Load(),
	}
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.closing = true
	close(s.closed)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) acquire(ctx context.Context) bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	case <-s.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Server) release() {
	if s.slots != nil {
		<-s.slots
	}
}

// handle runs one connection task. Every failure, including a panic in the
// handler, ends here.
func (s *Server) handle(ctx context.Context, raw net.Conn) {
	start := time.Now()
	s.active.Add(1)
	s.metrics.ConnectionOpened()
	defer s.release()

	logger := s.logger.With("remote_addr", raw.RemoteAddr().String())

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = s.exchange(ctx, raw, logger) })
	if r := pc.Recovered(); r != nil {
		_ = raw.Close()
		logger.Error("connection task panicked", "panic", r.Value, "stack", string(r.Stack))
		err = r.AsError()
	}

	s.active.Add(-1)
	elapsed := time.Since(start)
	if err != nil {
		code := mvrperrors.CodeOf(err)
		if code == "" {
			code = "INTERNAL"
		}
		logger.Warn("connection failed", "error_code", code, "error", err.Error(), "duration", elapsed)
		s.metrics.ConnectionClosed(ports.OutcomeFailed, code, elapsed)
		s.failed.Add(1)
		return
	}
	s.metrics.ConnectionClosed(ports.OutcomeServed, "", elapsed)
	s.served.Add(1)
}

// exchange is the per-connection pipeline: handshake, read, parse, dispatch,
// write, close. A request that fails to parse is dropped without a response.
func (s *Server) exchange(ctx context.Context, raw net.Conn, logger *slog.Logger) error {
	ch, err := accept(ctx, raw, s.tlsConfig, s.opts.HandshakeTimeout)
	if err != nil {
		return err
	}
	defer ch.Close()
	logger = logger.With("conn_id", ch.ID)

	if err := ch.SetReadDeadline(s.opts.ReadTimeout); err != nil {
		return mvrperrors.Wrapf(mvrperrors.ErrIO, err, "set read deadline")
	}
	req, err := s.opts.Framer.ReadRequest(ch)
	if err != nil {
		return err
	}
	logger.Debug("request received", "method", string(req.Method), "target", req.Target, "body_bytes", len(req.Body))

	resp := s.handler.Handle(ctx, req)
	if resp == nil {
		return mvrperrors.Newf(mvrperrors.ErrIO, "handler returned no response for %s %s", req.Method, req.Target)
	}

	if err := ch.SetWriteDeadline(s.opts.WriteTimeout); err != nil {
		return mvrperrors.Wrapf(mvrperrors.ErrIO, err, "set write deadline")
	}
	if err := wire.WriteResponse(ch, resp); err != nil {
		return err
	}
	s.metrics.RequestServed(string(req.Method), resp.Status.Code)
	logger.Info("request served",
		"method", string(req.Method),
		"target", req.Target,
		"status", resp.Status.Code)

	return ch.Close()
}

func nextBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptBackoff
	}
	if next := prev * 2; next < maxAcceptBackoff {
		return next
	}
	return maxAcceptBackoff
}
