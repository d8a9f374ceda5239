// Package testutil provides shared test utilities for wgconf tests.
package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/wgconf/wgconf/internal/keys"
)

// TempDir creates a temporary directory for testing and returns a cleanup function.
func TempDir(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "wgconf-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	return dir, func() {
		_ = os.RemoveAll(dir)
	}
}

// TempFile creates a temporary file with the given content and returns its path.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// WriteConfDir writes every name/content pair of files into dir.
func WriteConfDir(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		TempFile(t, dir, name, content)
	}
}

// ReadConfDir returns the content of every regular file directly inside dir, keyed by name.
func ReadConfDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	out := make(map[string]string)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("failed to read %s: %v", e.Name(), err)
		}
		out[e.Name()] = string(data)
	}
	return out
}

// FileNames returns the sorted keys of a ReadConfDir result.
func FileNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// KeyPair is a WireGuard key pair in base64.
type KeyPair struct {
	Private string
	Public  string
}

// GenerateKeyPair generates a real WireGuard key pair for testing.
func GenerateKeyPair(t *testing.T) KeyPair {
	t.Helper()
	priv, pub, err := keys.WireGuard{}.GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}
	return KeyPair{Private: priv, Public: pub}
}
