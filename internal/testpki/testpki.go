// Package testpki issues throwaway certificates for tests.
package testpki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

var serial atomic.Int64

// CA is a self-signed certificate authority.
type CA struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
	PEM  []byte
}

// NewCA creates a CA valid for one day.
func NewCA(tb testing.TB, cn string) *CA {
	tb.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("generate CA key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial.Add(1)),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Conduit Test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		tb.Fatalf("create CA certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("parse CA certificate: %v", err)
	}
	return &CA{
		Cert: cert,
		Key:  key,
		PEM:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// Leaf is an issued certificate and its key, also in PEM form.
type Leaf struct {
	Cert    *x509.Certificate
	Key     *ecdsa.PrivateKey
	CertPEM []byte
	KeyPEM  []byte
}

// TLSCertificate returns the leaf as a crypto/tls certificate.
func (l *Leaf) TLSCertificate(tb testing.TB) tls.Certificate {
	tb.Helper()
	c, err := tls.X509KeyPair(l.CertPEM, l.KeyPEM)
	if err != nil {
		tb.Fatalf("load key pair: %v", err)
	}
	return c
}

// Options controls an issued certificate.
type Options struct {
	NotBefore time.Time
	NotAfter  time.Time
	Client    bool
	DNSNames  []string
	OrgUnit   string
}

// Issue signs a certificate for cn. Server certificates cover localhost and
// 127.0.0.1 unless DNSNames is set.
func (ca *CA) Issue(tb testing.TB, cn string, opts Options) *Leaf {
	tb.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("generate key: %v", err)
	}
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(24 * time.Hour)
	}
	usage := x509.ExtKeyUsageServerAuth
	if opts.Client {
		usage = x509.ExtKeyUsageClientAuth
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial.Add(1)),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    opts.NotBefore,
		NotAfter:     opts.NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{usage},
	}
	if opts.OrgUnit != "" {
		tmpl.Subject.OrganizationalUnit = []string{opts.OrgUnit}
	}
	if !opts.Client {
		tmpl.DNSNames = []string{"localhost"}
		tmpl.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
	}
	if len(opts.DNSNames) > 0 {
		tmpl.DNSNames = opts.DNSNames
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.Cert, &key.PublicKey, ca.Key)
	if err != nil {
		tb.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("parse certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		tb.Fatalf("marshal key: %v", err)
	}
	return &Leaf{
		Cert:    cert,
		Key:     key,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}
}

// Pool returns a cert pool containing only the CA.
func (ca *CA) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(ca.Cert)
	return pool
}

// Files are the paths of a server certificate, key and trusted CA bundle.
type Files struct {
	Cert string
	Key  string
	CA   string
}

// WriteServerFiles issues a server certificate for cn and writes it, its key
// and the CA into dir.
func (ca *CA) WriteServerFiles(tb testing.TB, dir, cn string) Files {
	tb.Helper()
	leaf := ca.Issue(tb, cn, Options{})
	f := Files{
		Cert: filepath.Join(dir, "server.crt"),
		Key:  filepath.Join(dir, "server.key"),
		CA:   filepath.Join(dir, "ca.crt"),
	}
	WriteFile(tb, f.Cert, leaf.CertPEM)
	WriteFile(tb, f.Key, leaf.KeyPEM)
	WriteFile(tb, f.CA, ca.PEM)
	return f
}

// WriteFile writes data to path and bumps its modification time past any
// earlier write, so change detection based on mtime sees every write even on
// filesystems with coarse timestamps.
func WriteFile(tb testing.TB, path string, data []byte) {
	tb.Helper()
	if err := os.WriteFile(path, data, 0600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	mtime := time.Now().Add(time.Duration(serial.Add(1)) * time.Second)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		tb.Fatalf("chtimes %s: %v", path, err)
	}
}

// Stores are the paths of a PKCS#12 key store and trust store.
type Stores struct {
	KeyStore   string
	TrustStore string
}

// WriteStores issues a server certificate for cn and writes it as a PKCS#12
// key store, with the CA as a PKCS#12 trust store, both encrypted with
// password using the modern (AES-256, SHA-256 MAC) algorithms.
func (ca *CA) WriteStores(tb testing.TB, dir, cn, password string) Stores {
	tb.Helper()
	leaf := ca.Issue(tb, cn, Options{})

	ks, err := pkcs12.Modern.Encode(leaf.Key, leaf.Cert, []*x509.Certificate{ca.Cert}, password)
	if err != nil {
		tb.Fatalf("encode key store: %v", err)
	}
	ts, err := pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{ca.Cert}, password)
	if err != nil {
		tb.Fatalf("encode trust store: %v", err)
	}

	s := Stores{
		KeyStore:   filepath.Join(dir, "server.p12"),
		TrustStore: filepath.Join(dir, "truststore.p12"),
	}
	WriteFile(tb, s.KeyStore, ks)
	WriteFile(tb, s.TrustStore, ts)
	return s
}
