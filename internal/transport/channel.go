// Package transport runs MVRP over mutually authenticated TLS: it establishes
// secure channels, supervises server connections and sends client requests.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sufield/mvrp/internal/adapters/secondary/trust"
	"github.com/sufield/mvrp/internal/core/domain"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
)

// Channel is an authenticated, encrypted stream carrying one MVRP exchange.
// It is owned by a single goroutine.
type Channel struct {
	// ID correlates log lines for one connection.
	ID string

	conn      *tls.Conn
	closeOnce sync.Once
	closeErr  error
}

// Accept performs the responder side of the handshake on raw. The peer's
// host name is never checked. On failure raw is closed.
func Accept(ctx context.Context, raw net.Conn, tc *trust.Context, timeout time.Duration) (*Channel, error) {
	if tc == nil || tc.Role() != domain.RoleServer {
		_ = raw.Close()
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "accept needs a server trust context")
	}
	return accept(ctx, raw, tc.Config(), timeout)
}

func accept(ctx context.Context, raw net.Conn, cfg *tls.Config, timeout time.Duration) (*Channel, error) {
	return handshake(ctx, tls.Server(raw, cfg), timeout)
}

// Dial connects to address and performs the initiator side of the handshake,
// verifying the server against serverName. An empty serverName falls back to
// the trust context's configured name, then to the host part of address.
func Dial(ctx context.Context, address string, tc *trust.Context, serverName string, timeout time.Duration) (*Channel, error) {
	if tc == nil || tc.Role() != domain.RoleClient {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "dial needs a client trust context")
	}
	if serverName == "" {
		serverName = ExpectedServerName(tc.ServerName(), address)
	}

	dialer := &net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrIO, err, "connect to %s", address)
	}
	return handshake(ctx, tls.Client(raw, tc.ClientConfig(serverName)), timeout)
}

// ExpectedServerName picks the identity a client expects from the server:
// the configured name when set, otherwise the host part of address.
func ExpectedServerName(configured, address string) string {
	if configured != "" {
		return configured
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}

func handshake(ctx context.Context, conn *tls.Conn, timeout time.Duration) (*Channel, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = conn.NetConn().Close()
		return nil, mvrperrors.Wrapf(mvrperrors.ErrHandshake, err, "handshake with %s", conn.RemoteAddr())
	}
	return &Channel{ID: uuid.NewString(), conn: conn}, nil
}

// Read reads decrypted application data.
func (c *Channel) Read(p []byte) (int, error) { return c.conn.Read(p) }

// Write encrypts and sends p.
func (c *Channel) Write(p []byte) (int, error) { return c.conn.Write(p) }

// RemoteAddr is the peer's network address.
func (c *Channel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// PeerCertificates are the certificates the peer presented, leaf first.
func (c *Channel) PeerCertificates() []*x509.Certificate {
	return c.conn.ConnectionState().PeerCertificates
}

// SetReadDeadline bounds the next reads. Zero means no deadline.
func (c *Channel) SetReadDeadline(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(d))
}

// SetWriteDeadline bounds the next writes. Zero means no deadline.
func (c *Channel) SetWriteDeadline(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return c.conn.SetWriteDeadline(time.Now().Add(d))
}

// Close sends close_notify and closes the underlying connection. Repeated
// calls return the first result.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil {
			c.closeErr = mvrperrors.Wrapf(mvrperrors.ErrIO, err, "close connection")
		}
	})
	return c.closeErr
}
