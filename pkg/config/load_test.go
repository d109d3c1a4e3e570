package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conduit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
broker:
  max_message_size: 1048576
  haproxy_protocol_enabled: true
  tls_cert_refresh_check_duration_sec: 60

listeners:
  - name: internal
    address: "127.0.0.1:6650"
  - name: internal-tls
    address: "127.0.0.1:6651"
    tls: true

security:
  tls:
    certificate_file_path: /tmp/server.crt
    key_file_path: /tmp/server.key
    protocols: ["TLSv1.3"]

telemetry:
  logging:
    level: debug
    format: text
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Broker.MaxMessageSize != 1048576 {
		t.Errorf("expected max message size 1048576, got %d", cfg.Broker.MaxMessageSize)
	}
	if !cfg.Broker.HAProxyProtocolEnabled {
		t.Error("expected PROXY protocol detection enabled")
	}
	if cfg.Broker.RefreshInterval() != time.Minute {
		t.Errorf("expected refresh interval 1m, got %v", cfg.Broker.RefreshInterval())
	}
	if len(cfg.Listeners) != 2 {
		t.Fatalf("expected 2 listeners, got %d", len(cfg.Listeners))
	}
	if !cfg.Listeners[1].TLS {
		t.Error("expected second listener to terminate TLS")
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("expected explicit metrics.enabled=false to survive defaults")
	}
	if !cfg.Telemetry.Health.Enabled {
		t.Error("expected health to keep its default")
	}
	if cfg.Broker.FlowControlQueueSize != DefaultFlowControlQueueSize {
		t.Errorf("expected default queue size, got %d", cfg.Broker.FlowControlQueueSize)
	}
}

func TestLoadConfig_RefreshDisabled(t *testing.T) {
	path := writeConfig(t, `
broker:
  tls_cert_refresh_check_duration_sec: 0
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Broker.RefreshInterval() != 0 {
		t.Errorf("expected refresh disabled, got %v", cfg.Broker.RefreshInterval())
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			content: "broker: [",
			wantErr: "failed to parse",
		},
		{
			name: "tls listener without material",
			content: `
listeners:
  - address: "127.0.0.1:6651"
    tls: true
`,
			wantErr: "security.tls.certificate_file_path",
		},
		{
			name: "bad log level",
			content: `
telemetry:
  logging:
    level: loud
`,
			wantErr: "telemetry.logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
broker:
  max_message_size: 1024
`)

	t.Setenv("CONDUIT_BROKER_MAX_MESSAGE_SIZE", "2048")
	t.Setenv("CONDUIT_BROKER_HAPROXY_PROTOCOL_ENABLED", "true")
	t.Setenv("CONDUIT_BROKER_TLS_CERT_REFRESH_CHECK_DURATION_SEC", "not-a-number")
	t.Setenv("CONDUIT_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Broker.MaxMessageSize != 2048 {
		t.Errorf("expected env override 2048, got %d", cfg.Broker.MaxMessageSize)
	}
	if !cfg.Broker.HAProxyProtocolEnabled {
		t.Error("expected env override to enable PROXY protocol detection")
	}
	if cfg.Broker.TLSCertRefreshCheckDurationSec != DefaultTLSCertRefreshCheckDurationSec {
		t.Errorf("expected unparsable override to be ignored, got %d", cfg.Broker.TLSCertRefreshCheckDurationSec)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidAfterOverride(t *testing.T) {
	path := writeConfig(t, "{}\n")
	t.Setenv("CONDUIT_TELEMETRY_LOGGING_FORMAT", "xml")

	_, err := LoadConfigWithEnvOverrides(path)
	if err == nil || !strings.Contains(err.Error(), "after environment overrides") {
		t.Errorf("expected validation error after overrides, got %v", err)
	}
}
