// Package config provides configuration management for Conduit.
//
// Configuration is read from a YAML file, decoded on top of the defaults in
// defaults.go, optionally overridden by environment variables and validated
// before use.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("conduit.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("conduit.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CONDUIT_SECTION_FIELD:
//
//   - CONDUIT_BROKER_MAX_MESSAGE_SIZE overrides broker.max_message_size
//   - CONDUIT_SECURITY_TLS_KEY_FILE_PATH overrides security.tls.key_file_path
//   - CONDUIT_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// Validation collects every problem into a ValidationError:
//
//	configuration validation failed with 2 errors:
//	  - listeners[1].address: listen address is required
//	  - security.tls.key_file_path: TLS key file is required when a listener has TLS enabled
//
// # Example Configuration
//
//	broker:
//	  max_message_size: 5242880
//	  haproxy_protocol_enabled: true
//	  tls_cert_refresh_check_duration_sec: 300
//
//	listeners:
//	  - name: internal
//	    address: "0.0.0.0:6650"
//	  - name: internal-tls
//	    address: "0.0.0.0:6651"
//	    tls: true
//
//	security:
//	  tls:
//	    certificate_file_path: /etc/conduit/server.crt
//	    key_file_path: /etc/conduit/server.key
//	    trust_certs_file_path: /etc/conduit/ca.crt
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
package config
