package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/sufield/mvrp/internal/adapters/logging"
	"github.com/sufield/mvrp/internal/adapters/secondary/trust"
	"github.com/sufield/mvrp/internal/core/domain"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
	"github.com/sufield/mvrp/internal/wire"
)

// ClientOptions configure a Client. Address and Trust are required.
type ClientOptions struct {
	Address string
	Trust   *trust.Context
	// ServerName overrides the identity expected from the server.
	ServerName string
	Framer     wire.Framer
	Logger     *slog.Logger

	// DialTimeout bounds connect and handshake together. Zero means none.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Client sends MVRP requests, one fresh connection per request.
type Client struct {
	opts       ClientOptions
	serverName string
	logger     *slog.Logger
}

// NewClient validates opts and returns a client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Address == "" {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "client address is required")
	}
	if opts.Trust == nil {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "client trust context is required")
	}
	if opts.Trust.Role() != domain.RoleClient {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "client needs a client trust context, got %s", opts.Trust.Role())
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		opts:       opts,
		serverName: ExpectedServerName(firstNonEmpty(opts.ServerName, opts.Trust.ServerName()), opts.Address),
		logger:     logger,
	}, nil
}

// ServerName is the identity the client verifies the server against.
func (c *Client) ServerName() string { return c.serverName }

// Send opens a connection, writes one request and returns the raw response
// text from a single bounded read. The connection is not reused.
func (c *Client) Send(ctx context.Context, method domain.Method, target, body string) (string, error) {
	ch, err := Dial(ctx, c.opts.Address, c.opts.Trust, c.serverName, c.opts.DialTimeout)
	if err != nil {
		return "", err
	}
	defer ch.Close()

	logger := c.logger.With("conn_id", ch.ID, "address", c.opts.Address)

	if err := ch.SetWriteDeadline(c.opts.WriteTimeout); err != nil {
		return "", mvrperrors.Wrapf(mvrperrors.ErrIO, err, "set write deadline")
	}
	if err := wire.WriteRequest(ch, method, target, body); err != nil {
		return "", err
	}
	logger.Debug("request sent", "method", string(method), "target", target, "body_bytes", len(body))

	if err := ch.SetReadDeadline(c.opts.ReadTimeout); err != nil {
		return "", mvrperrors.Wrapf(mvrperrors.ErrIO, err, "set read deadline")
	}
	raw, err := c.opts.Framer.ReadResponse(ch)
	if err != nil {
		return "", err
	}
	logger.Debug("response received", "bytes", len(raw))
	return raw, nil
}

// Do is Send followed by parsing the response.
func (c *Client) Do(ctx context.Context, method domain.Method, target, body string) (*domain.Response, error) {
	raw, err := c.Send(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	return wire.ParseResponse(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
