package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecret(t *testing.T, dir, name, value string, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), perm); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(filepath.Join(dir, name), perm); err != nil {
		t.Fatal(err)
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("CONDUIT_SECRET_KEYSTORE_PASSWORD", "changeit")
	t.Setenv("CONDUIT_SECRET_EMPTY", "")

	p := NewEnvProvider(DefaultEnvPrefix)
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"keystore-password", "changeit", false},
		{"empty", "", false},
		{"missing", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GetSecret() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "keystore-password", "s3cret\n", 0600)
	writeSecret(t, dir, "readonly", "ro", 0400)
	writeSecret(t, dir, "world-readable", "oops", 0644)
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0700); err != nil {
		t.Fatal(err)
	}

	p, err := NewFileProvider(dir)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}

	tests := []struct {
		name    string
		want    string
		wantErr string
	}{
		{name: "keystore-password", want: "s3cret"},
		{name: "readonly", want: "ro"},
		{name: "world-readable", wantErr: "insecure permissions"},
		{name: "subdir", wantErr: "not a regular file"},
		{name: "missing", wantErr: "not found"},
		{name: "../etc/passwd", wantErr: "invalid secret name"},
		{name: "..", wantErr: "invalid secret name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.name)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("GetSecret() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetSecret() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GetSecret() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := NewFileProvider(filepath.Join(dir, "keystore-password")); err == nil {
		t.Error("NewFileProvider() on a file should fail")
	}
}

func TestManager_ResolveReferences(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "keystore-password", "from-file", 0600)
	t.Setenv("CONDUIT_SECRET_KEYSTORE_PASSWORD", "from-env")
	t.Setenv("CONDUIT_SECRET_TRUSTSTORE_PASSWORD", "trust")

	files, err := NewFileProvider(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(files, NewEnvProvider(DefaultEnvPrefix))

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"literal", "changeit", "changeit", false},
		{"file wins over env", "${secret:keystore-password}", "from-file", false},
		{"env fallback", "${secret:truststore-password}", "trust", false},
		{"embedded", "pre-${secret:truststore-password}-post", "pre-trust-post", false},
		{"missing", "${secret:nope}", "${secret:nope}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ResolveReferences(context.Background(), tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveReferences() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveReferences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestManager_RereadsRotatedSecret(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "keystore-password", "v1", 0600)
	files, _ := NewFileProvider(dir)
	m := NewManager(files)

	if got, _ := m.GetSecret(context.Background(), "keystore-password"); got != "v1" {
		t.Fatalf("GetSecret() = %q, want v1", got)
	}
	writeSecret(t, dir, "keystore-password", "v2", 0600)
	if got, _ := m.GetSecret(context.Background(), "keystore-password"); got != "v2" {
		t.Errorf("GetSecret() after rotation = %q, want v2", got)
	}
}

func TestHasReferences(t *testing.T) {
	if !HasReferences("${secret:x}") || HasReferences("plain") {
		t.Error("HasReferences() misclassified input")
	}
	if _, err := NewManager().GetSecret(context.Background(), "x"); err == nil {
		t.Error("GetSecret() without providers should fail")
	}
}
