package mvrp

import (
	"context"
	"log/slog"

	"github.com/sufield/mvrp/internal/adapters/secondary/pemfile"
	"github.com/sufield/mvrp/internal/adapters/secondary/trust"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
	"github.com/sufield/mvrp/internal/transport"
)

// ClientOption customizes a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger *slog.Logger
}

// WithClientLogger sets the client's logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// Client sends MVRP requests. Every request uses a fresh connection, so a
// Client is safe for concurrent use.
type Client struct {
	inner *transport.Client
}

// NewClient loads the identity and trust anchor named by cfg.
func NewClient(cfg *ClientConfig, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "client configuration is required")
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	id, err := pemfile.LoadIdentity(cfg.KeyFile, cfg.CertFile, cfg.CAFile)
	if err != nil {
		return nil, err
	}
	tc, err := trust.NewClientContext(id, trust.ClientOptions{
		ServerName: cfg.ServerName,
		PeerID:     cfg.PeerID,
	})
	if err != nil {
		return nil, err
	}
	inner, err := transport.NewClient(transport.ClientOptions{
		Address:      cfg.Address,
		Trust:        tc,
		Framer:       cfg.Framer(),
		Logger:       o.logger,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Client{inner: inner}, nil
}

// Send performs one exchange and returns the raw response text.
func (c *Client) Send(ctx context.Context, method Method, target, body string) (string, error) {
	return c.inner.Send(ctx, method, target, body)
}

// Do performs one exchange and parses the response.
func (c *Client) Do(ctx context.Context, method Method, target, body string) (*Response, error) {
	return c.inner.Do(ctx, method, target, body)
}

// ServerName is the identity the server certificate is verified against.
func (c *Client) ServerName() string { return c.inner.ServerName() }
