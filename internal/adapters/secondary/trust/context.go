// Package trust builds the immutable TLS configuration each MVRP role runs
// with.
package trust

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/svid/x509svid"

	"github.com/sufield/mvrp/internal/core/domain"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
)

// DefaultMinVersion is the lowest TLS version either role negotiates.
const DefaultMinVersion = tls.VersionTLS12

// ClientAuthPolicy controls whether a server asks for client certificates.
type ClientAuthPolicy int

const (
	// ClientAuthNone presents the server certificate and does not request
	// one from the client.
	ClientAuthNone ClientAuthPolicy = iota
	// ClientAuthRequire requires a client certificate chaining to the client
	// CA anchor.
	ClientAuthRequire
)

func (p ClientAuthPolicy) String() string {
	switch p {
	case ClientAuthNone:
		return "none"
	case ClientAuthRequire:
		return "require"
	default:
		return "unknown"
	}
}

// ParseClientAuthPolicy parses "none" or "require". Empty means none.
func ParseClientAuthPolicy(s string) (ClientAuthPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ClientAuthNone, nil
	case "require":
		return ClientAuthRequire, nil
	default:
		return ClientAuthNone, fmt.Errorf("invalid client auth policy %q (want none or require)", s)
	}
}

// ServerOptions tune a server trust context.
type ServerOptions struct {
	ClientAuth ClientAuthPolicy
	// ClientCA verifies client certificates under ClientAuthRequire. When nil
	// the identity's CA is used.
	ClientCA *x509.Certificate
	// PeerID, when set, is the SPIFFE ID every client certificate must carry.
	PeerID     string
	MinVersion uint16
}

// ClientOptions tune a client trust context.
type ClientOptions struct {
	// ServerName is the identity expected from the server when a connection
	// does not name one itself.
	ServerName string
	// PeerID, when set, is the SPIFFE ID the server certificate must carry.
	PeerID     string
	MinVersion uint16
}

// Context is a role's immutable TLS configuration. It is built once per
// process and may be shared by any number of connections.
type Context struct {
	role       domain.Role
	subject    string
	serverName string
	config     *tls.Config
}

// NewServerContext builds the trust context a server presents to clients.
func NewServerContext(id *domain.IdentityMaterial, opts ServerOptions) (*Context, error) {
	if err := id.Validate(domain.RoleServer); err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrConfig, err, "server identity")
	}

	cfg := &tls.Config{
		MinVersion:   minVersion(opts.MinVersion),
		Certificates: []tls.Certificate{keyPair(id)},
		ClientAuth:   tls.NoClientCert,
	}

	if opts.ClientAuth == ClientAuthRequire {
		anchor := opts.ClientCA
		if anchor == nil {
			anchor = id.CA
		}
		pool, err := anchorPool(anchor)
		if err != nil {
			return nil, err
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = pool
	}

	if opts.PeerID != "" {
		if opts.ClientAuth != ClientAuthRequire {
			return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "peer id %q needs client auth policy require", opts.PeerID)
		}
		verify, err := peerIDVerifier(opts.PeerID)
		if err != nil {
			return nil, err
		}
		cfg.VerifyConnection = verify
	}

	return &Context{
		role:    domain.RoleServer,
		subject: id.Cert.Subject.String(),
		config:  cfg,
	}, nil
}

// NewClientContext builds the trust context a client dials with. The
// identity's CA is the only root the client trusts.
func NewClientContext(id *domain.IdentityMaterial, opts ClientOptions) (*Context, error) {
	if err := id.Validate(domain.RoleClient); err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrConfig, err, "client identity")
	}
	pool, err := anchorPool(id.CA)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion:   minVersion(opts.MinVersion),
		Certificates: []tls.Certificate{keyPair(id)},
		RootCAs:      pool,
		ServerName:   opts.ServerName,
	}

	if opts.PeerID != "" {
		verify, err := peerIDVerifier(opts.PeerID)
		if err != nil {
			return nil, err
		}
		cfg.VerifyConnection = verify
	}

	return &Context{
		role:       domain.RoleClient,
		subject:    id.Cert.Subject.String(),
		serverName: opts.ServerName,
		config:     cfg,
	}, nil
}

// Role reports which end of a connection this context serves.
func (c *Context) Role() domain.Role { return c.role }

// Subject is the subject of the certificate this context presents.
func (c *Context) Subject() string { return c.subject }

// ServerName is the configured expected server identity, possibly empty.
func (c *Context) ServerName() string { return c.serverName }

// Config returns a copy of the TLS configuration.
func (c *Context) Config() *tls.Config {
	return c.config.Clone()
}

// ClientConfig returns a copy of the TLS configuration that expects
// serverName from the peer. An empty serverName keeps the configured one.
func (c *Context) ClientConfig(serverName string) *tls.Config {
	cfg := c.config.Clone()
	if serverName != "" {
		cfg.ServerName = serverName
	}
	return cfg
}

func keyPair(id *domain.IdentityMaterial) tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Cert.Raw},
		PrivateKey:  id.PrivateKey,
		Leaf:        id.Cert,
	}
}

func anchorPool(anchor *x509.Certificate) (*x509.CertPool, error) {
	if anchor == nil {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "no trust anchor supplied")
	}
	if !anchor.IsCA {
		return nil, mvrperrors.Newf(mvrperrors.ErrConfig, "trust anchor %q is not a CA certificate", anchor.Subject.String())
	}
	pool := x509.NewCertPool()
	pool.AddCert(anchor)
	return pool, nil
}

func minVersion(v uint16) uint16 {
	if v == 0 {
		return DefaultMinVersion
	}
	return v
}

// peerIDVerifier checks the verified peer leaf carries exactly the SPIFFE ID
// raw. It runs after chain verification.
func peerIDVerifier(raw string) (func(tls.ConnectionState) error, error) {
	expected, err := spiffeid.FromString(raw)
	if err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrConfig, err, "invalid peer id %q", raw)
	}
	authorize := tlsconfig.AuthorizeID(expected)

	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return fmt.Errorf("peer presented no certificate")
		}
		actual, err := x509svid.IDFromCert(cs.PeerCertificates[0])
		if err != nil {
			return fmt.Errorf("peer certificate has no SPIFFE ID: %w", err)
		}
		return authorize(actual, cs.VerifiedChains)
	}, nil
}
