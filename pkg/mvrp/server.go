package mvrp

import (
	"context"
	"log/slog"
	"net"

	"github.com/sufield/mvrp/internal/adapters/secondary/pemfile"
	"github.com/sufield/mvrp/internal/adapters/secondary/trust"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
	"github.com/sufield/mvrp/internal/transport"
)

// ServerOption customizes a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger  *slog.Logger
	handler Handler
	metrics ServerMetrics
}

// WithLogger sets the server's logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = logger }
}

// WithHandler replaces the built-in method dispatcher.
func WithHandler(h Handler) ServerOption {
	return func(o *serverOptions) { o.handler = h }
}

// WithMetrics reports connection events to m.
func WithMetrics(m ServerMetrics) ServerOption {
	return func(o *serverOptions) { o.metrics = m }
}

// Server answers MVRP requests, one per connection.
type Server struct {
	inner   *transport.Server
	subject string
}

// NewServer loads the identity named by cfg and prepares a server. It does
// not bind the address until ListenAndServe.
func NewServer(cfg *ServerConfig, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "server configuration is required")
	}
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	tc, err := serverTrust(cfg)
	if err != nil {
		return nil, err
	}
	inner, err := transport.NewServer(transport.ServerOptions{
		Address:          cfg.Address,
		Trust:            tc,
		Framer:           cfg.Framer(),
		Handler:          o.handler,
		Logger:           o.logger,
		Metrics:          o.metrics,
		MaxConnections:   cfg.MaxConnections,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		WriteTimeout:     cfg.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Server{inner: inner, subject: tc.Subject()}, nil
}

func serverTrust(cfg *ServerConfig) (*trust.Context, error) {
	id, err := pemfile.LoadIdentity(cfg.KeyFile, cfg.CertFile, cfg.CAFile)
	if err != nil {
		return nil, err
	}
	policy, err := trust.ParseClientAuthPolicy(cfg.ClientAuth)
	if err != nil {
		return nil, mvrperrors.NewDomainError(mvrperrors.ErrConfig, err)
	}
	opts := trust.ServerOptions{ClientAuth: policy, PeerID: cfg.PeerID}
	if cfg.ClientCAFile != "" {
		if opts.ClientCA, err = pemfile.LoadCACertificate(cfg.ClientCAFile); err != nil {
			return nil, err
		}
	}
	return trust.NewServerContext(id, opts)
}

// ListenAndServe binds the configured address and serves until ctx is
// cancelled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	return s.inner.ListenAndServe(ctx)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return s.inner.Serve(ctx, ln)
}

// Shutdown stops accepting and waits for in-flight connections or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

// Addr is the bound address, or nil before serving.
func (s *Server) Addr() net.Addr { return s.inner.Addr() }

// Stats returns the connection counters.
func (s *Server) Stats() Stats { return s.inner.Stats() }

// Subject is the subject of the certificate the server presents.
func (s *Server) Subject() string { return s.subject }
