package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// secretRefRegex matches ${secret:name} references.
var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager tries its providers in order until one returns the secret.
// Nothing is cached.
type Manager struct {
	providers []SecretProvider
}

// NewManager creates a manager over providers, highest priority first.
func NewManager(providers ...SecretProvider) *Manager {
	return &Manager{providers: providers}
}

// GetSecret returns the secret from the first provider that has it.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if len(m.providers) == 0 {
		return "", fmt.Errorf("secret %q: no secret providers configured", name)
	}

	var errs []error
	for _, p := range m.providers {
		value, err := p.GetSecret(ctx, name)
		if err == nil {
			return value, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Provider(), err))
	}
	return "", fmt.Errorf("failed to get secret %q: %w", name, errors.Join(errs...))
}

// ResolveReferences replaces every ${secret:name} in input with the
// secret's value. Input without references is returned unchanged. On
// failure the returned error names every unresolved reference and the
// original input is returned.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var errs []error
	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefRegex.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})

	if len(errs) > 0 {
		return input, errors.Join(errs...)
	}
	return output, nil
}

// HasReferences reports whether input contains a secret reference.
func HasReferences(input string) bool {
	return secretRefRegex.MatchString(input)
}
