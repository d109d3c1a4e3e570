package config

import "time"

// Config is the root configuration structure for Conduit.
// It contains the broker connection settings, the listening endpoints,
// TLS material and telemetry settings.
type Config struct {
	// Broker contains per-connection settings consulted while bootstrapping
	// every accepted connection.
	Broker BrokerConfig `yaml:"broker"`

	// Listeners is the list of listening endpoints. Each endpoint gets its
	// own channel bootstrap options (TLS on/off, listener name).
	Listeners []ListenerConfig `yaml:"listeners"`

	// Security contains TLS key and trust material settings.
	Security SecurityConfig `yaml:"security"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing and health endpoints.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BrokerConfig contains the global settings read by the pipeline assembler
// for every accepted connection.
type BrokerConfig struct {
	// MaxMessageSize is the largest logical message accepted from a client,
	// in bytes. The frame decoder allows MaxMessageSize plus a fixed framing
	// padding.
	// Default: 5242880 (5 MiB)
	MaxMessageSize uint32 `yaml:"max_message_size"`

	// HAProxyProtocolEnabled installs the optional PROXY protocol detector
	// in front of the frame decoder.
	// Default: false
	HAProxyProtocolEnabled bool `yaml:"haproxy_protocol_enabled"`

	// TLSCertRefreshCheckDurationSec is the delay, in seconds, between the end
	// of one TLS context refresh and the start of the next. 0 disables refresh.
	// Default: 300
	TLSCertRefreshCheckDurationSec uint32 `yaml:"tls_cert_refresh_check_duration_sec"`

	// TLSHandshakeTimeout bounds the TLS handshake of a new connection. A
	// peer that has not completed it in time is disconnected.
	// Default: 10s
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout"`

	// TLSCertWatch additionally watches the credential files and refreshes
	// the TLS context shortly after they change.
	// Default: false
	TLSCertWatch bool `yaml:"tls_cert_watch"`

	// TLSExpiryCheckSchedule is a cron expression for the job that reports
	// how long the served certificate remains valid. Empty disables the job.
	// Default: "@hourly"
	TLSExpiryCheckSchedule string `yaml:"tls_expiry_check_schedule"`

	// FlowControlQueueSize is the number of decoded frames buffered per
	// connection before the reader stops pulling bytes from the socket.
	// Default: 16
	FlowControlQueueSize int `yaml:"flow_control_queue_size"`

	// MaxConnections caps the channels served at once across all
	// listeners. Connections over the limit are closed on accept.
	// Default: 0 (unlimited)
	MaxConnections int `yaml:"max_connections"`

	// MaxConnectionsPerIP caps the channels served at once for one remote
	// IP address.
	// Default: 0 (unlimited)
	MaxConnectionsPerIP int `yaml:"max_connections_per_ip"`

	// ShutdownTimeout is the maximum duration to wait for connections to
	// drain during graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ListenerConfig describes one listening endpoint.
type ListenerConfig struct {
	// Name identifies the listener. It is handed to the application handler
	// of every connection accepted on this endpoint. Optional.
	Name string `yaml:"name"`

	// Address is the "host:port" to listen on.
	Address string `yaml:"address"`

	// TLS enables TLS termination on this endpoint.
	TLS bool `yaml:"tls"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// TLS contains the server's TLS key and trust material.
	TLS TLSConfig `yaml:"tls"`

	// SecretsDir is a directory of secret files consulted, before the
	// environment, for ${secret:name} references in store passwords.
	SecretsDir string `yaml:"secrets_dir"`
}

// TLSConfig contains the settings the TLS context is derived from. Either a
// certificate/key pair of PEM files or a key store (when EnabledWithKeyStore
// is set) must be provided when any listener has TLS enabled.
type TLSConfig struct {
	// KeyStoreType is the key store format when EnabledWithKeyStore is set.
	// Options: "PKCS12"
	// Default: "PKCS12"
	KeyStoreType string `yaml:"key_store_type"`

	// KeyStore is the path to the key store holding the server key and
	// certificate chain.
	KeyStore string `yaml:"key_store"`

	// KeyStorePassword unlocks KeyStore.
	KeyStorePassword string `yaml:"key_store_password"`

	// TrustStoreType is the trust store format when EnabledWithKeyStore is set.
	// Default: "PKCS12"
	TrustStoreType string `yaml:"trust_store_type"`

	// TrustStore is the path to the trust store holding trusted client CAs.
	TrustStore string `yaml:"trust_store"`

	// TrustStorePassword unlocks TrustStore.
	TrustStorePassword string `yaml:"trust_store_password"`

	// Ciphers is a list of enabled cipher suite names.
	// If empty, Go's default secure cipher suites are used.
	Ciphers []string `yaml:"ciphers"`

	// Protocols is a list of enabled protocol versions.
	// Options: "TLSv1.2", "TLSv1.3"
	// If empty, TLS 1.2 and 1.3 are enabled.
	Protocols []string `yaml:"protocols"`

	// TrustCertsFilePath is a PEM bundle of CAs trusted for client certificates.
	TrustCertsFilePath string `yaml:"trust_certs_file_path"`

	// CertificateFilePath is the PEM server certificate chain.
	CertificateFilePath string `yaml:"certificate_file_path"`

	// KeyFilePath is the PEM server private key.
	KeyFilePath string `yaml:"key_file_path"`

	// AllowInsecureConnection accepts client certificates without verifying them.
	// Default: false
	AllowInsecureConnection bool `yaml:"allow_insecure_connection"`

	// RequireTrustedClientCertOnConnect rejects clients that do not present a
	// certificate signed by a trusted CA.
	// Default: false
	RequireTrustedClientCertOnConnect bool `yaml:"require_trusted_client_cert_on_connect"`

	// EnabledWithKeyStore loads material from KeyStore/TrustStore instead of
	// the PEM file paths.
	// Default: false
	EnabledWithKeyStore bool `yaml:"enabled_with_key_store"`

	// FactoryPlugin selects the registered TLS factory implementation.
	// Default: "default"
	FactoryPlugin string `yaml:"factory_plugin"`

	// FactoryPluginParams is an opaque parameter string handed to the factory.
	FactoryPluginParams string `yaml:"factory_plugin_params"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`

	// AdminAddress is the "host:port" serving metrics and health endpoints.
	// Empty disables the admin endpoint.
	// Default: "127.0.0.1:9650"
	AdminAddress string `yaml:"admin_address"`

	// AdminTokens, when set, are required as bearer tokens by the metrics
	// and version endpoints. Values may be ${secret:name} references.
	AdminTokens []AdminTokenConfig `yaml:"admin_tokens"`
}

// AdminTokenConfig is a named admin endpoint token.
type AdminTokenConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks attributes whose key names a secret (passwords,
	// private keys) before they reach the log output.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`

	// RedactKeys adds attribute keys to mask on top of the built-in list.
	RedactKeys []string `yaml:"redact_keys"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "conduit"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "broker"
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "conduit"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout bounds each individual readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// TLSEnabled reports whether any listener terminates TLS.
func (c *Config) TLSEnabled() bool {
	for _, l := range c.Listeners {
		if l.TLS {
			return true
		}
	}
	return false
}

// RefreshInterval returns the TLS refresh delay as a duration.
func (b BrokerConfig) RefreshInterval() time.Duration {
	return time.Duration(b.TLSCertRefreshCheckDurationSec) * time.Second
}
