package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"mercator-hq/conduit/pkg/config"
)

// SSLConfiguration is an immutable snapshot of the settings a server TLS
// context is built from. A snapshot is produced whole by a CredentialSource;
// it is never patched field by field.
type SSLConfiguration struct {
	KeyStoreType       string
	KeyStorePath       string
	KeyStorePassword   string
	TrustStoreType     string
	TrustStorePath     string
	TrustStorePassword string

	Ciphers   []string
	Protocols []string

	TrustCertsFilePath  string
	CertificateFilePath string
	KeyFilePath         string

	AllowInsecureConnection           bool
	RequireTrustedClientCertOnConnect bool
	EnabledWithKeyStore               bool

	FactoryPlugin       string
	FactoryPluginParams string

	// ServerMode is always true for contexts built by this package.
	ServerMode bool
}

// BuildSSLConfiguration copies every TLS setting out of the configuration
// into a new snapshot in server mode.
func BuildSSLConfiguration(cfg config.TLSConfig) SSLConfiguration {
	return SSLConfiguration{
		KeyStoreType:                      cfg.KeyStoreType,
		KeyStorePath:                      cfg.KeyStore,
		KeyStorePassword:                  cfg.KeyStorePassword,
		TrustStoreType:                    cfg.TrustStoreType,
		TrustStorePath:                    cfg.TrustStore,
		TrustStorePassword:                cfg.TrustStorePassword,
		Ciphers:                           slices.Clone(cfg.Ciphers),
		Protocols:                         slices.Clone(cfg.Protocols),
		TrustCertsFilePath:                cfg.TrustCertsFilePath,
		CertificateFilePath:               cfg.CertificateFilePath,
		KeyFilePath:                       cfg.KeyFilePath,
		AllowInsecureConnection:           cfg.AllowInsecureConnection,
		RequireTrustedClientCertOnConnect: cfg.RequireTrustedClientCertOnConnect,
		EnabledWithKeyStore:               cfg.EnabledWithKeyStore,
		FactoryPlugin:                     cfg.FactoryPlugin,
		FactoryPluginParams:               cfg.FactoryPluginParams,
		ServerMode:                        true,
	}
}

// Equal reports whether two snapshots carry the same settings.
func (c SSLConfiguration) Equal(o SSLConfiguration) bool {
	return c.KeyStoreType == o.KeyStoreType &&
		c.KeyStorePath == o.KeyStorePath &&
		c.KeyStorePassword == o.KeyStorePassword &&
		c.TrustStoreType == o.TrustStoreType &&
		c.TrustStorePath == o.TrustStorePath &&
		c.TrustStorePassword == o.TrustStorePassword &&
		slices.Equal(c.Ciphers, o.Ciphers) &&
		slices.Equal(c.Protocols, o.Protocols) &&
		c.TrustCertsFilePath == o.TrustCertsFilePath &&
		c.CertificateFilePath == o.CertificateFilePath &&
		c.KeyFilePath == o.KeyFilePath &&
		c.AllowInsecureConnection == o.AllowInsecureConnection &&
		c.RequireTrustedClientCertOnConnect == o.RequireTrustedClientCertOnConnect &&
		c.EnabledWithKeyStore == o.EnabledWithKeyStore &&
		c.FactoryPlugin == o.FactoryPlugin &&
		c.FactoryPluginParams == o.FactoryPluginParams &&
		c.ServerMode == o.ServerMode
}

// LogValue keeps passwords out of log output when a snapshot is logged.
func (c SSLConfiguration) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("factory_plugin", c.FactoryPlugin),
		slog.Bool("enabled_with_key_store", c.EnabledWithKeyStore),
		slog.String("certificate_file_path", c.CertificateFilePath),
		slog.String("key_file_path", c.KeyFilePath),
		slog.String("trust_certs_file_path", c.TrustCertsFilePath),
		slog.String("key_store", c.KeyStorePath),
		slog.String("trust_store", c.TrustStorePath),
		slog.Any("protocols", c.Protocols),
		slog.Bool("require_trusted_client_cert", c.RequireTrustedClientCertOnConnect),
		slog.Bool("allow_insecure_connection", c.AllowInsecureConnection),
	)
}

// files returns every credential file the snapshot references.
func (c SSLConfiguration) files() []string {
	var paths []string
	if c.EnabledWithKeyStore {
		paths = append(paths, c.KeyStorePath)
		if c.TrustStorePath != "" {
			paths = append(paths, c.TrustStorePath)
		}
		return paths
	}
	paths = append(paths, c.CertificateFilePath, c.KeyFilePath)
	if c.TrustCertsFilePath != "" {
		paths = append(paths, c.TrustCertsFilePath)
	}
	return paths
}

// CredentialSource produces TLS configuration snapshots. It is consulted once
// at startup and again on every refresh.
type CredentialSource interface {
	Load(ctx context.Context) (SSLConfiguration, error)
}

// CredentialSourceFunc adapts a function to CredentialSource.
type CredentialSourceFunc func(ctx context.Context) (SSLConfiguration, error)

// Load calls f(ctx).
func (f CredentialSourceFunc) Load(ctx context.Context) (SSLConfiguration, error) {
	return f(ctx)
}

// SecretResolver replaces secret references in a configuration value.
type SecretResolver interface {
	ResolveReferences(ctx context.Context, input string) (string, error)
}

// ConfigSource reads the TLS section of the current process configuration
// on every Load, so a reloaded configuration is seen by the next refresh.
type ConfigSource struct {
	// Get returns the configuration to read. Defaults to config.GetConfig.
	Get func() *config.Config

	// Secrets, if set, resolves references in the store passwords. They
	// are resolved on every Load.
	Secrets SecretResolver
}

// Load builds a snapshot from the current configuration.
func (s ConfigSource) Load(ctx context.Context) (SSLConfiguration, error) {
	get := s.Get
	if get == nil {
		get = config.GetConfig
	}
	cfg := get()
	if cfg == nil {
		return SSLConfiguration{}, &CredentialLoadError{Op: "load configuration", Err: ErrNoConfiguration}
	}

	snapshot := BuildSSLConfiguration(cfg.Security.TLS)
	if s.Secrets == nil {
		return snapshot, nil
	}

	var err error
	if snapshot.KeyStorePassword, err = s.Secrets.ResolveReferences(ctx, snapshot.KeyStorePassword); err != nil {
		return SSLConfiguration{}, &CredentialLoadError{Op: "resolve key store password", Path: snapshot.KeyStorePath, Err: err}
	}
	if snapshot.TrustStorePassword, err = s.Secrets.ResolveReferences(ctx, snapshot.TrustStorePassword); err != nil {
		return SSLConfiguration{}, &CredentialLoadError{Op: "resolve trust store password", Path: snapshot.TrustStorePath, Err: err}
	}
	return snapshot, nil
}

// StaticSource always returns the same snapshot.
func StaticSource(c SSLConfiguration) CredentialSource {
	return CredentialSourceFunc(func(context.Context) (SSLConfiguration, error) {
		return c, nil
	})
}

// versionRange converts protocol names into the min and max versions for
// crypto/tls. An empty list enables TLS 1.2 and 1.3.
func versionRange(protocols []string) (minVersion, maxVersion uint16, err error) {
	if len(protocols) == 0 {
		return tls.VersionTLS12, tls.VersionTLS13, nil
	}
	for _, p := range protocols {
		var v uint16
		switch strings.TrimSpace(p) {
		case "TLSv1.2":
			v = tls.VersionTLS12
		case "TLSv1.3":
			v = tls.VersionTLS13
		default:
			return 0, 0, fmt.Errorf("unsupported protocol %q", p)
		}
		if minVersion == 0 || v < minVersion {
			minVersion = v
		}
		if v > maxVersion {
			maxVersion = v
		}
	}
	return minVersion, maxVersion, nil
}

// parseCipherSuites converts cipher suite names to tls constants. Unknown
// names are an error. An empty list returns nil to use Go's defaults.
func parseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}

	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := cipherSuiteMap[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		suites = append(suites, id)
	}
	return suites, nil
}

// cipherSuiteMap maps cipher suite names to their tls package constants.
// Only secure cipher suites are included. TLS 1.3 suites are accepted but
// crypto/tls does not allow them to be disabled.
var cipherSuiteMap = map[string]uint16{
	"TLS_AES_128_GCM_SHA256":       tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": tls.TLS_CHACHA20_POLY1305_SHA256,

	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":         tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":         tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256":       tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384":       tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256":   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256": tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// clientAuthPolicy maps the snapshot's client certificate settings onto a
// crypto/tls client auth mode. With insecure connections allowed a required
// client certificate must be present but is not verified against the trust
// store.
func clientAuthPolicy(c SSLConfiguration, haveTrust bool) tls.ClientAuthType {
	switch {
	case c.RequireTrustedClientCertOnConnect && c.AllowInsecureConnection:
		return tls.RequireAnyClientCert
	case c.RequireTrustedClientCertOnConnect:
		return tls.RequireAndVerifyClientCert
	case c.AllowInsecureConnection:
		return tls.RequestClientCert
	case haveTrust:
		return tls.VerifyClientCertIfGiven
	default:
		return tls.NoClientCert
	}
}
