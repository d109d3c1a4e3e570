package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider loads secrets from files in a directory, one secret per
// file named after the secret, as mounted by Kubernetes secret volumes.
// Files are read on every lookup so a rotated secret is picked up by the
// next TLS refresh.
type FileProvider struct {
	BasePath string
}

// NewFileProvider creates a provider reading from basePath.
func NewFileProvider(basePath string) (*FileProvider, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to access secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", basePath)
	}
	return &FileProvider{BasePath: basePath}, nil
}

// GetSecret reads <BasePath>/<name>. The file must be a regular file
// readable by the owner only (0600 or 0400). Surrounding whitespace is
// trimmed.
func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) || name == ".." || name == "." {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(p.BasePath, name)

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("secret file not found: %s", name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", name)
	}
	if mode := info.Mode().Perm(); mode != 0600 && mode != 0400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	// #nosec G304 - name cannot leave BasePath
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Provider returns the provider name.
func (p *FileProvider) Provider() string {
	return "file"
}
