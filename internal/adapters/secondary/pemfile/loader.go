// Package pemfile loads MVRP identity material from PEM files.
//
// Every artifact must hold exactly one object of the requested kind. Zero or
// several matching blocks is a configuration error and is never resolved by
// picking the first block.
package pemfile

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/sufield/mvrp/internal/core/domain"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
)

// PEM block types.
const (
	blockCertificate  = "CERTIFICATE"
	blockPKCS8Key     = "PRIVATE KEY"
	blockPKCS1Key     = "RSA PRIVATE KEY"
	blockECPrivateKey = "EC PRIVATE KEY"
)

var keyBlockTypes = map[string]bool{
	blockPKCS8Key:     true,
	blockPKCS1Key:     true,
	blockECPrivateKey: true,
}

// LoadIdentity loads the key and certificate, plus the CA certificate when
// caPath is not empty. Whether the key matches the certificate is checked
// when a trust context is built from the result.
func LoadIdentity(keyPath, certPath, caPath string) (*domain.IdentityMaterial, error) {
	key, err := LoadPrivateKey(keyPath)
	if err != nil {
		return nil, err
	}
	cert, err := LoadCertificate(certPath)
	if err != nil {
		return nil, err
	}
	m := &domain.IdentityMaterial{PrivateKey: key, Cert: cert}
	if caPath != "" {
		ca, err := LoadCACertificate(caPath)
		if err != nil {
			return nil, err
		}
		m.CA = ca
	}
	return m, nil
}

// LoadPrivateKey decodes the single PKCS#8, PKCS#1 or SEC1 private key in path.
func LoadPrivateKey(path string) (crypto.Signer, error) {
	block, err := loadSingleBlock(path, "private key", func(t string) bool { return keyBlockTypes[t] })
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(block)
	if err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrLoad, err, "decode private key from %s", path)
	}
	return key, nil
}

// LoadCertificate decodes the single leaf certificate in path.
func LoadCertificate(path string) (*x509.Certificate, error) {
	return loadCertificate(path, "certificate")
}

// LoadCACertificate decodes the single CA certificate in path. The certificate
// must carry the CA basic constraint.
func LoadCACertificate(path string) (*x509.Certificate, error) {
	cert, err := loadCertificate(path, "CA certificate")
	if err != nil {
		return nil, err
	}
	if !cert.IsCA {
		return nil, mvrperrors.Newf(mvrperrors.ErrLoad, "%s: certificate %q is not a CA", path, cert.Subject.String())
	}
	return cert, nil
}

func loadCertificate(path, kind string) (*x509.Certificate, error) {
	block, err := loadSingleBlock(path, kind, func(t string) bool { return t == blockCertificate })
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrLoad, err, "decode %s from %s", kind, path)
	}
	return cert, nil
}

// loadSingleBlock reads path and returns its only PEM block accepted by match.
func loadSingleBlock(path, kind string, match func(blockType string) bool) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrLoad, err, "read %s file", kind)
	}

	var found []*pem.Block
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if match(block.Type) {
			found = append(found, block)
		}
	}

	switch len(found) {
	case 0:
		return nil, mvrperrors.Newf(mvrperrors.ErrLoad, "%s: no %s found", path, kind)
	case 1:
		return found[0], nil
	default:
		return nil, mvrperrors.Newf(mvrperrors.ErrLoad, "%s: expected exactly one %s, found %d", path, kind, len(found))
	}
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	var (
		key any
		err error
	)
	switch block.Type {
	case blockPKCS1Key:
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case blockECPrivateKey:
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return signer, nil
}
