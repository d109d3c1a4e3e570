package tls

import (
	"errors"
	"fmt"
)

var (
	// ErrTLSNotInitialized is returned when an engine is requested before the
	// server context has been built.
	ErrTLSNotInitialized = errors.New("tls context not initialized")

	// ErrUnknownFactory is returned when a snapshot names a factory plugin
	// that has not been registered.
	ErrUnknownFactory = errors.New("unknown tls factory")

	// ErrNoConfiguration is returned by ConfigSource before configuration
	// has been loaded.
	ErrNoConfiguration = errors.New("configuration not initialized")
)

// CredentialLoadError reports a failure to load or build TLS material.
// It is fatal at startup and logged on refresh.
type CredentialLoadError struct {
	// Op is the step that failed (e.g. "load certificate", "decode key store").
	Op string
	// Path is the file involved, if any.
	Path string
	Err  error
}

func (e *CredentialLoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("tls: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("tls: %s: %v", e.Op, e.Err)
}

func (e *CredentialLoadError) Unwrap() error { return e.Err }

// loadError wraps err unless it already is a *CredentialLoadError.
func loadError(op, path string, err error) error {
	var cle *CredentialLoadError
	if errors.As(err, &cle) {
		return err
	}
	return &CredentialLoadError{Op: op, Path: path, Err: err}
}
