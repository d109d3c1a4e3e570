package config

import (
	"fmt"
	"sync/atomic"
)

// globalConfig holds the process configuration.
var globalConfig atomic.Pointer[Config]

// GetConfig returns the global configuration instance, or nil if none has
// been set.
//
// Components take an explicit *Config; the singleton is only read by the
// command line entry points.
func GetConfig() *Config {
	return globalConfig.Load()
}

// SetConfig replaces the global configuration instance.
func SetConfig(cfg *Config) {
	globalConfig.Store(cfg)
}

// ReloadConfig reloads the configuration from the specified path. The global
// instance is replaced only if loading and validation succeed.
//
// Settings captured by a running server (listeners, the broker section) are
// not re-applied; TLS material on disk is picked up by the TLS refresh task.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	globalConfig.Store(cfg)
	return nil
}
