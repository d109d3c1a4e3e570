package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "broker.max_message_size").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateBroker(&cfg.Broker)...)
	errs = append(errs, validateListeners(cfg.Listeners)...)
	errs = append(errs, validateSecurity(&cfg.Security, cfg.TLSEnabled())...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateBroker validates per-connection bootstrap settings.
func validateBroker(cfg *BrokerConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxMessageSize == 0 {
		errs = append(errs, FieldError{
			Field:   "broker.max_message_size",
			Message: "max message size must be positive",
		})
	}
	if cfg.TLSExpiryCheckSchedule != "" {
		if _, err := cron.ParseStandard(cfg.TLSExpiryCheckSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "broker.tls_expiry_check_schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.TLSExpiryCheckSchedule, err),
			})
		}
	}
	if cfg.FlowControlQueueSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "broker.flow_control_queue_size",
			Message: "flow control queue size must be positive",
		})
	}
	if cfg.TLSHandshakeTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "broker.tls_handshake_timeout",
			Message: "tls handshake timeout must be positive",
		})
	}
	if cfg.MaxConnections < 0 {
		errs = append(errs, FieldError{
			Field:   "broker.max_connections",
			Message: "max connections must not be negative",
		})
	}
	if cfg.MaxConnectionsPerIP < 0 {
		errs = append(errs, FieldError{
			Field:   "broker.max_connections_per_ip",
			Message: "max connections per IP must not be negative",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "broker.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	return errs
}

// validateListeners validates the listening endpoints.
func validateListeners(listeners []ListenerConfig) []FieldError {
	var errs []FieldError

	if len(listeners) == 0 {
		errs = append(errs, FieldError{
			Field:   "listeners",
			Message: "at least one listener is required",
		})
		return errs
	}

	names := make(map[string]int)
	addrs := make(map[string]int)
	for i, l := range listeners {
		field := fmt.Sprintf("listeners[%d]", i)

		if l.Address == "" {
			errs = append(errs, FieldError{
				Field:   field + ".address",
				Message: "listen address is required",
			})
		} else if _, _, err := net.SplitHostPort(l.Address); err != nil {
			errs = append(errs, FieldError{
				Field:   field + ".address",
				Message: fmt.Sprintf("invalid listen address %q: %v", l.Address, err),
			})
		} else if prev, dup := addrs[l.Address]; dup {
			errs = append(errs, FieldError{
				Field:   field + ".address",
				Message: fmt.Sprintf("address %q already used by listeners[%d]", l.Address, prev),
			})
		} else {
			addrs[l.Address] = i
		}

		if l.Name == "" {
			continue
		}
		if prev, dup := names[l.Name]; dup {
			errs = append(errs, FieldError{
				Field:   field + ".name",
				Message: fmt.Sprintf("listener name %q already used by listeners[%d]", l.Name, prev),
			})
		} else {
			names[l.Name] = i
		}
	}

	return errs
}

// validateSecurity validates TLS material. Key material is only required
// when at least one listener terminates TLS.
func validateSecurity(cfg *SecurityConfig, tlsEnabled bool) []FieldError {
	var errs []FieldError
	t := &cfg.TLS

	validProtocols := map[string]bool{"TLSv1.2": true, "TLSv1.3": true}
	for i, p := range t.Protocols {
		if !validProtocols[p] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("security.tls.protocols[%d]", i),
				Message: fmt.Sprintf("unsupported protocol %q: must be 'TLSv1.2' or 'TLSv1.3'", p),
			})
		}
	}

	validStoreTypes := map[string]bool{"PKCS12": true}
	if t.EnabledWithKeyStore {
		if !validStoreTypes[strings.ToUpper(t.KeyStoreType)] {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_store_type",
				Message: fmt.Sprintf("unsupported key store type %q: must be 'PKCS12'", t.KeyStoreType),
			})
		}
		if t.TrustStore != "" && !validStoreTypes[strings.ToUpper(t.TrustStoreType)] {
			errs = append(errs, FieldError{
				Field:   "security.tls.trust_store_type",
				Message: fmt.Sprintf("unsupported trust store type %q: must be 'PKCS12'", t.TrustStoreType),
			})
		}
	}

	if !tlsEnabled {
		return errs
	}

	if t.EnabledWithKeyStore {
		if t.KeyStore == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_store",
				Message: "key store is required when a TLS listener uses key store mode",
			})
		}
	} else {
		if t.CertificateFilePath == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.certificate_file_path",
				Message: "TLS certificate file is required when a listener has TLS enabled",
			})
		}
		if t.KeyFilePath == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file_path",
				Message: "TLS key file is required when a listener has TLS enabled",
			})
		}
	}

	if t.RequireTrustedClientCertOnConnect {
		hasTrust := t.TrustCertsFilePath != ""
		if t.EnabledWithKeyStore {
			hasTrust = t.TrustStore != ""
		}
		if !hasTrust {
			errs = append(errs, FieldError{
				Field:   "security.tls.require_trusted_client_cert_on_connect",
				Message: "trusted client certificates require a trust certs file or trust store",
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text' or 'console'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path is required when metrics are enabled",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if cfg.Tracing.Sampler != "" && !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if cfg.Health.Enabled {
		if cfg.Health.LivenessPath == "" || cfg.Health.LivenessPath[0] != '/' {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.liveness_path",
				Message: "liveness path must start with /",
			})
		}
		if cfg.Health.ReadinessPath == "" || cfg.Health.ReadinessPath[0] != '/' {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.readiness_path",
				Message: "readiness path must start with /",
			})
		}
		if cfg.Health.CheckTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.check_timeout",
				Message: "check timeout must be positive",
			})
		}
		if cfg.Health.CheckTimeout > 60*time.Second {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.check_timeout",
				Message: "check timeout exceeds reasonable limit (60s)",
			})
		}
	}

	tokenNames := make(map[string]int)
	for i, t := range cfg.AdminTokens {
		field := fmt.Sprintf("telemetry.admin_tokens[%d]", i)
		if t.Token == "" {
			errs = append(errs, FieldError{
				Field:   field + ".token",
				Message: "token value is required",
			})
		}
		if prev, dup := tokenNames[t.Name]; dup {
			errs = append(errs, FieldError{
				Field:   field + ".name",
				Message: fmt.Sprintf("token name %q already used by admin_tokens[%d]", t.Name, prev),
			})
		} else {
			tokenNames[t.Name] = i
		}
	}

	if cfg.AdminAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.AdminAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.admin_address",
				Message: fmt.Sprintf("invalid admin address %q: %v", cfg.AdminAddress, err),
			})
		}
	}

	return errs
}
