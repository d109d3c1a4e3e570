package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes a YAML document on top of DefaultConfig and fills any
// remaining zero values. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	// An explicit listener list replaces the default one rather than
	// merging element by element.
	cfg.Listeners = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CONDUIT_SECTION_FIELD (e.g., CONDUIT_BROKER_MAX_MESSAGE_SIZE).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format CONDUIT_SECTION_FIELD. Values that fail
// to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Broker overrides
	if val := os.Getenv("CONDUIT_BROKER_MAX_MESSAGE_SIZE"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.Broker.MaxMessageSize = uint32(n)
		}
	}
	if val := os.Getenv("CONDUIT_BROKER_HAPROXY_PROTOCOL_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Broker.HAProxyProtocolEnabled = b
		}
	}
	if val := os.Getenv("CONDUIT_BROKER_TLS_CERT_REFRESH_CHECK_DURATION_SEC"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.Broker.TLSCertRefreshCheckDurationSec = uint32(n)
		}
	}
	if val := os.Getenv("CONDUIT_BROKER_TLS_CERT_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Broker.TLSCertWatch = b
		}
	}
	if val := os.Getenv("CONDUIT_BROKER_FLOW_CONTROL_QUEUE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Broker.FlowControlQueueSize = i
		}
	}
	if val := os.Getenv("CONDUIT_BROKER_TLS_HANDSHAKE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Broker.TLSHandshakeTimeout = d
		}
	}
	if val := os.Getenv("CONDUIT_BROKER_MAX_CONNECTIONS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Broker.MaxConnections = i
		}
	}
	if val := os.Getenv("CONDUIT_BROKER_MAX_CONNECTIONS_PER_IP"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Broker.MaxConnectionsPerIP = i
		}
	}
	if val := os.Getenv("CONDUIT_BROKER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Broker.ShutdownTimeout = d
		}
	}

	// Security overrides
	tls := &cfg.Security.TLS
	if val := os.Getenv("CONDUIT_SECURITY_TLS_CERTIFICATE_FILE_PATH"); val != "" {
		tls.CertificateFilePath = val
	}
	if val := os.Getenv("CONDUIT_SECURITY_TLS_KEY_FILE_PATH"); val != "" {
		tls.KeyFilePath = val
	}
	if val := os.Getenv("CONDUIT_SECURITY_TLS_TRUST_CERTS_FILE_PATH"); val != "" {
		tls.TrustCertsFilePath = val
	}
	if val := os.Getenv("CONDUIT_SECURITY_TLS_KEY_STORE"); val != "" {
		tls.KeyStore = val
	}
	if val := os.Getenv("CONDUIT_SECURITY_TLS_KEY_STORE_PASSWORD"); val != "" {
		tls.KeyStorePassword = val
	}
	if val := os.Getenv("CONDUIT_SECURITY_TLS_TRUST_STORE"); val != "" {
		tls.TrustStore = val
	}
	if val := os.Getenv("CONDUIT_SECURITY_TLS_TRUST_STORE_PASSWORD"); val != "" {
		tls.TrustStorePassword = val
	}
	if val := os.Getenv("CONDUIT_SECURITY_TLS_ENABLED_WITH_KEY_STORE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			tls.EnabledWithKeyStore = b
		}
	}
	if val := os.Getenv("CONDUIT_SECURITY_TLS_REQUIRE_TRUSTED_CLIENT_CERT_ON_CONNECT"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			tls.RequireTrustedClientCertOnConnect = b
		}
	}
	if val := os.Getenv("CONDUIT_SECURITY_TLS_FACTORY_PLUGIN"); val != "" {
		tls.FactoryPlugin = val
	}

	// Telemetry overrides
	if val := os.Getenv("CONDUIT_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("CONDUIT_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("CONDUIT_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("CONDUIT_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("CONDUIT_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val := os.Getenv("CONDUIT_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
	if val := os.Getenv("CONDUIT_TELEMETRY_ADMIN_ADDRESS"); val != "" {
		cfg.Telemetry.AdminAddress = val
	}
}
