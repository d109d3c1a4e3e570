package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ServerContext is one built server TLS context. It is never modified after
// publication; a refresh publishes a new ServerContext.
type ServerContext struct {
	config     *tls.Config
	snapshot   SSLConfiguration
	generation uint64
	loadedAt   time.Time
	stamps     map[string]time.Time
	leaf       *x509.Certificate
}

// Config returns the crypto/tls configuration. Callers must not modify it.
func (c *ServerContext) Config() *tls.Config { return c.config }

// Snapshot returns the settings the context was built from.
func (c *ServerContext) Snapshot() SSLConfiguration { return c.snapshot }

// Generation starts at 1 and increases with every published context.
func (c *ServerContext) Generation() uint64 { return c.generation }

// LoadedAt returns when the context was built.
func (c *ServerContext) LoadedAt() time.Time { return c.loadedAt }

// Leaf returns the parsed server certificate.
func (c *ServerContext) Leaf() *x509.Certificate { return c.leaf }

// FileFactory is the default Factory. It reads PEM files, or a PKCS#12 key
// store when the snapshot enables it, and rebuilds when the snapshot or the
// modification time of any referenced file changes.
type FileFactory struct {
	logger *slog.Logger

	// mu serializes Initialize and Update. Readers only touch current.
	mu      sync.Mutex
	current atomic.Pointer[ServerContext]
}

// NewFileFactory creates an uninitialized FileFactory.
func NewFileFactory(logger *slog.Logger) *FileFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileFactory{logger: logger.With("component", "tls.factory")}
}

// Initialize builds and publishes the first context.
func (f *FileFactory) Initialize(c SSLConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, err := f.build(c, 1)
	if err != nil {
		return err
	}
	f.current.Store(next)
	f.logCertificateInfo(next)
	return nil
}

// Current returns the published context, or nil before Initialize.
func (f *FileFactory) Current() *ServerContext {
	return f.current.Load()
}

// CreateServerEngine returns a server TLS connection using the current
// context. Connections keep the context they were created with.
func (f *FileFactory) CreateServerEngine(conn net.Conn) (*tls.Conn, error) {
	sc := f.current.Load()
	if sc == nil {
		return nil, ErrTLSNotInitialized
	}
	return tls.Server(conn, sc.config), nil
}

// Update rebuilds the context when c differs from the current snapshot or a
// referenced file has a new modification time. A failed build leaves the
// current context and its stamps untouched, so the next Update retries.
func (f *FileFactory) Update(c SSLConfiguration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.current.Load()
	if cur == nil {
		next, err := f.build(c, 1)
		if err != nil {
			return false, err
		}
		f.current.Store(next)
		f.logCertificateInfo(next)
		return true, nil
	}

	stamps, err := statFiles(c.files())
	if err != nil {
		return false, err
	}
	if cur.snapshot.Equal(c) && maps.Equal(cur.stamps, stamps) {
		return false, nil
	}

	next, err := f.build(c, cur.generation+1)
	if err != nil {
		return false, err
	}
	f.current.Store(next)

	f.logger.Info("tls context rebuilt",
		"generation", next.generation,
		"settings_changed", !cur.snapshot.Equal(c),
	)
	f.logCertificateInfo(next)
	return true, nil
}

// build loads all material referenced by c into a new context. Files are
// stat'ed before they are read so a write racing the read is seen as a
// change on the next Update.
func (f *FileFactory) build(c SSLConfiguration, generation uint64) (*ServerContext, error) {
	stamps, err := statFiles(c.files())
	if err != nil {
		return nil, err
	}

	minVersion, maxVersion, err := versionRange(c.Protocols)
	if err != nil {
		return nil, loadError("parse protocols", "", err)
	}
	suites, err := parseCipherSuites(c.Ciphers)
	if err != nil {
		return nil, loadError("parse ciphers", "", err)
	}

	var (
		cert     tls.Certificate
		certPath string
		pool     *x509.CertPool
	)
	if c.EnabledWithKeyStore {
		certPath = c.KeyStorePath
		cert, err = loadKeyStore(c.KeyStoreType, c.KeyStorePath, c.KeyStorePassword)
		if err != nil {
			return nil, err
		}
		if c.TrustStorePath != "" {
			pool, err = loadTrustStore(c.TrustStoreType, c.TrustStorePath, c.TrustStorePassword)
			if err != nil {
				return nil, err
			}
		}
	} else {
		certPath = c.CertificateFilePath
		cert, err = tls.LoadX509KeyPair(c.CertificateFilePath, c.KeyFilePath)
		if err != nil {
			return nil, loadError("load certificate", c.CertificateFilePath, err)
		}
		if c.TrustCertsFilePath != "" {
			pool, err = loadTrustCerts(c.TrustCertsFilePath)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := ValidateCertificate(&cert); err != nil {
		return nil, loadError("validate certificate", certPath, err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, loadError("parse certificate", certPath, err)
	}
	cert.Leaf = leaf

	// #nosec G402 - versions are limited to TLS 1.2 and 1.3 by versionRange
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
		CipherSuites: suites,
		ClientCAs:    pool,
		ClientAuth:   clientAuthPolicy(c, pool != nil),
	}

	return &ServerContext{
		config:     cfg,
		snapshot:   c,
		generation: generation,
		loadedAt:   time.Now(),
		stamps:     stamps,
		leaf:       leaf,
	}, nil
}

// loadTrustCerts reads a PEM bundle of trusted client CAs.
func loadTrustCerts(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadError("read trust certs", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, loadError("parse trust certs", path, fmt.Errorf("no PEM certificates found"))
	}
	return pool, nil
}

// statFiles records the modification time of every path.
func statFiles(paths []string) (map[string]time.Time, error) {
	stamps := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, loadError("stat", p, err)
		}
		stamps[p] = info.ModTime()
	}
	return stamps, nil
}

// logCertificateInfo logs the subject and expiry of the context's server
// certificate, warning when it expires soon.
func (f *FileFactory) logCertificateInfo(sc *ServerContext) {
	if sc.leaf == nil {
		return
	}
	cert := sc.leaf

	daysUntilExpiry, warning := CheckCertificateExpiration(cert)
	if warning != "" {
		f.logger.Warn("certificate expiring soon",
			"subject", cert.Subject.CommonName,
			"expires_in_days", daysUntilExpiry,
			"expires_at", cert.NotAfter.Format(time.RFC3339),
			"generation", sc.generation,
		)
		return
	}
	f.logger.Info("certificate loaded",
		"subject", cert.Subject.CommonName,
		"issuer", cert.Issuer.CommonName,
		"expires_in_days", daysUntilExpiry,
		"expires_at", cert.NotAfter.Format(time.RFC3339),
		"generation", sc.generation,
	)
}
