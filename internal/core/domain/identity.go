// Package domain holds the MVRP message model, the method dispatcher and the
// identity material a trust context is built from.
package domain

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"reflect"
)

// Role distinguishes the two ends of an MVRP exchange.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// IdentityMaterial is the key, leaf certificate and (client only) trust
// anchor loaded at startup. It is immutable once built.
type IdentityMaterial struct {
	PrivateKey crypto.Signer
	Cert       *x509.Certificate
	// CA is the single trust anchor. Required for clients, optional for servers
	// that verify client certificates.
	CA *x509.Certificate
}

// Validate checks that the material is complete for role and that the key
// belongs to the certificate.
func (m *IdentityMaterial) Validate(role Role) error {
	if m == nil || m.Cert == nil {
		return fmt.Errorf("certificate cannot be nil")
	}
	if m.PrivateKey == nil || reflect.ValueOf(m.PrivateKey).IsNil() {
		return fmt.Errorf("private key cannot be nil")
	}
	if role == RoleClient && m.CA == nil {
		return fmt.Errorf("client identity requires a CA certificate")
	}
	if !KeysMatch(m.Cert.PublicKey, m.PrivateKey.Public()) {
		return fmt.Errorf("private key does not match certificate %q", m.Cert.Subject.String())
	}
	return nil
}

// publicKey is implemented by every public key type in the standard library.
type publicKey interface {
	Equal(x crypto.PublicKey) bool
}

// KeysMatch reports whether the certificate's public key and the public half
// of the private key are the same key.
func KeysMatch(certPublicKey, privateKeyPublic crypto.PublicKey) bool {
	pub, ok := certPublicKey.(publicKey)
	if !ok {
		return false
	}
	return pub.Equal(privateKeyPublic)
}
