// Package pki generates throwaway certificate authorities and leaf identities
// for tests. Everything is written as PEM under a test temp directory.
package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Authority is a self-signed CA able to issue leaf certificates.
type Authority struct {
	Dir    string
	Cert   *x509.Certificate
	Key    *ecdsa.PrivateKey
	CAFile string
}

// Leaf is an issued identity and the files it was written to.
type Leaf struct {
	Cert     *x509.Certificate
	Key      *ecdsa.PrivateKey
	CertFile string
	KeyFile  string
}

// LeafOptions customize an issued certificate.
type LeafOptions struct {
	// URIs are added as URI SANs, e.g. a SPIFFE ID.
	URIs []string
	// DNSNames defaults to "localhost".
	DNSNames []string
	// NotAfter defaults to one hour from now.
	NotAfter time.Time
}

var serial atomic.Int64

func nextSerial() *big.Int {
	return big.NewInt(serial.Add(1))
}

// NewAuthority creates a CA and writes its certificate to <dir>/<name>-ca.pem.
func NewAuthority(t testing.TB, name string) *Authority {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: name + " CA", Organization: []string{"mvrp-test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	dir := t.TempDir()
	caFile := filepath.Join(dir, name+"-ca.pem")
	WritePEM(t, caFile, &pem.Block{Type: "CERTIFICATE", Bytes: der})

	return &Authority{Dir: dir, Cert: cert, Key: key, CAFile: caFile}
}

// Issue signs a leaf certificate valid for client and server auth on
// localhost, 127.0.0.1 and ::1, and writes <name>-cert.pem and <name>-key.pem
// (PKCS#8).
func (a *Authority) Issue(t testing.TB, name string, opts LeafOptions) *Leaf {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	dnsNames := opts.DNSNames
	if dnsNames == nil {
		dnsNames = []string{"localhost"}
	}
	notAfter := opts.NotAfter
	if notAfter.IsZero() {
		notAfter = time.Now().Add(time.Hour)
	}
	uris := make([]*url.URL, 0, len(opts.URIs))
	for _, raw := range opts.URIs {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		uris = append(uris, u)
	}

	template := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject:      pkix.Name{CommonName: name, Organization: []string{"mvrp-test"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     dnsNames,
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		URIs:         uris,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, a.Cert, &key.PublicKey, a.Key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	leaf := &Leaf{
		Cert:     cert,
		Key:      key,
		CertFile: filepath.Join(a.Dir, name+"-cert.pem"),
		KeyFile:  filepath.Join(a.Dir, name+"-key.pem"),
	}
	WritePEM(t, leaf.CertFile, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	WritePEM(t, leaf.KeyFile, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return leaf
}

// WritePEM writes the blocks, in order, to path.
func WritePEM(t testing.TB, path string, blocks ...*pem.Block) {
	t.Helper()

	var data []byte
	for _, b := range blocks {
		data = append(data, pem.EncodeToMemory(b)...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

// ReadPEM returns the raw contents of path.
func ReadPEM(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
