package config

import "time"

// Default values for configuration fields.
const (
	// Broker defaults
	DefaultMaxMessageSize                 = 5 * 1024 * 1024 // 5 MiB
	DefaultTLSCertRefreshCheckDurationSec = 300
	DefaultTLSExpiryCheckSchedule         = "@hourly"
	DefaultTLSHandshakeTimeout            = 10 * time.Second
	DefaultFlowControlQueueSize           = 16
	DefaultShutdownTimeout                = 30 * time.Second

	// Listener defaults
	DefaultListenerName    = "internal"
	DefaultListenAddress   = "127.0.0.1:6650"
	DefaultTLSListenerName = "internal-tls"

	// TLS defaults
	DefaultKeyStoreType     = "PKCS12"
	DefaultTrustStoreType   = "PKCS12"
	DefaultTLSFactoryPlugin = "default"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultRedactSecrets      = true
	DefaultMetricsEnabled     = true
	DefaultPrometheusPath     = "/metrics"
	DefaultMetricsNamespace   = "conduit"
	DefaultMetricsSubsystem   = "broker"
	DefaultTracingEnabled     = false
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "conduit"
	DefaultTracingTimeout     = 10 * time.Second
	DefaultHealthEnabled      = true
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultHealthCheckTimeout = 5 * time.Second
	DefaultAdminAddress       = "127.0.0.1:9650"
)

// DefaultConfig returns a configuration populated with every default,
// including the boolean settings that default to true. YAML documents are
// decoded on top of it so an explicit "false" survives.
func DefaultConfig() *Config {
	cfg := &Config{
		Broker: BrokerConfig{
			TLSCertRefreshCheckDurationSec: DefaultTLSCertRefreshCheckDurationSec,
			TLSExpiryCheckSchedule:         DefaultTLSExpiryCheckSchedule,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				RedactSecrets: DefaultRedactSecrets,
			},
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
			},
			Health: HealthConfig{
				Enabled: DefaultHealthEnabled,
			},
			AdminAddress: DefaultAdminAddress,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Broker defaults
	if cfg.Broker.MaxMessageSize == 0 {
		cfg.Broker.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.Broker.FlowControlQueueSize == 0 {
		cfg.Broker.FlowControlQueueSize = DefaultFlowControlQueueSize
	}
	if cfg.Broker.TLSHandshakeTimeout == 0 {
		cfg.Broker.TLSHandshakeTimeout = DefaultTLSHandshakeTimeout
	}
	if cfg.Broker.ShutdownTimeout == 0 {
		cfg.Broker.ShutdownTimeout = DefaultShutdownTimeout
	}

	// A single plain-text listener when none is configured
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []ListenerConfig{{
			Name:    DefaultListenerName,
			Address: DefaultListenAddress,
		}}
	}

	// TLS defaults
	if cfg.Security.TLS.KeyStoreType == "" {
		cfg.Security.TLS.KeyStoreType = DefaultKeyStoreType
	}
	if cfg.Security.TLS.TrustStoreType == "" {
		cfg.Security.TLS.TrustStoreType = DefaultTrustStoreType
	}
	if cfg.Security.TLS.FactoryPlugin == "" {
		cfg.Security.TLS.FactoryPlugin = DefaultTLSFactoryPlugin
	}

	applyTelemetryDefaults(cfg)
}

// applyTelemetryDefaults fills logging, metrics, tracing and health defaults.
func applyTelemetryDefaults(cfg *Config) {
	t := &cfg.Telemetry

	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultPrometheusPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}

	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}

	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
