package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wgconf/wgconf/internal/snapshot"
	"github.com/wgconf/wgconf/testutil"
)

// run executes the CLI against dir and returns its standard output.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{"--config", filepath.Join(dir, "missing.yaml"), "--dir", dir, "--log-level", "error"}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, args...)
	require.NoError(t, err, "wgconf %s: %s", strings.Join(args, " "), out)
	return out
}

func TestVersion(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	out := mustRun(t, dir, "version")
	assert.Contains(t, out, "wgconf dev")
}

func TestWorkflow(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	mustRun(t, dir, "init", "--address", "10.8.0.1/24", "--name", "hub")
	assert.FileExists(t, filepath.Join(dir, "wg0.conf"))

	_, err := run(t, dir, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	out := mustRun(t, dir, "add-peer", "--name", "alice", "--endpoint", "vpn.example.com:51820")
	assert.Contains(t, out, "alice.conf")
	mustRun(t, dir, "add-peer", "--name", "bob", "--endpoint", "vpn.example.com:51820", "DNS=10.8.0.1")

	files := testutil.ReadConfDir(t, dir)
	require.Contains(t, files, "alice.conf")
	require.Contains(t, files, "bob.conf")
	assert.Contains(t, files["alice.conf"], "Address = 10.8.0.2/24")
	assert.Contains(t, files["bob.conf"], "DNS = 10.8.0.1")
	assert.Contains(t, files["wg0.conf"], "AllowedIPs = 10.8.0.3/32")

	out = mustRun(t, dir, "show")
	assert.Contains(t, out, "hub")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "10.8.0.3/24")

	out = mustRun(t, dir, "show", "2")
	assert.Contains(t, out, "# Name = bob")
	assert.Contains(t, out, "Endpoint = vpn.example.com:51820")

	out = mustRun(t, dir, "get", "1", "Address")
	assert.Equal(t, "10.8.0.2/24\n", out)

	mustRun(t, dir, "set", "1", "MTU=1380", "name=alice-laptop")
	out = mustRun(t, dir, "get", "1")
	assert.Contains(t, out, "1380")
	assert.Contains(t, out, "alice-laptop")

	_, err = run(t, dir, "set", "1", "MTU=10")
	assert.Error(t, err)

	before := testutil.ReadConfDir(t, dir)["wg0.conf"]
	mustRun(t, dir, "rekey", "2")
	assert.NotEqual(t, before, testutil.ReadConfDir(t, dir)["wg0.conf"])

	out = mustRun(t, dir, "check")
	assert.Contains(t, out, "2 peers")

	out = mustRun(t, dir, "resize", "100")
	assert.Contains(t, out, "192.168.0.0/25")
	out = mustRun(t, dir, "get", "0", "Address")
	assert.Equal(t, "192.168.0.126/25\n", out)
	out = mustRun(t, dir, "get", "2", "client_AllowedIPs")
	assert.Equal(t, "192.168.0.2/32\n", out)

	_, err = run(t, dir, "remove-peer", "0")
	assert.Error(t, err)
	_, err = run(t, dir, "remove-peer", "3")
	assert.Error(t, err)

	mustRun(t, dir, "remove-peer", "1")
	out = mustRun(t, dir, "show")
	assert.NotContains(t, out, "alice")
	assert.Contains(t, out, "bob")
	// the file keeps the name it was first written under
	assert.NoFileExists(t, filepath.Join(dir, "alice.conf"))
	assert.FileExists(t, filepath.Join(dir, "bob.conf"))

	_, err = run(t, dir, "qr", "0")
	assert.Error(t, err)
	png := filepath.Join(t.TempDir(), "bob.png")
	mustRun(t, dir, "qr", "1", "--png", png)
	assert.FileExists(t, png)

	assert.DirExists(t, filepath.Join(dir, ".conf_bak"))
}

func TestNoBackup(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	mustRun(t, dir, "init")
	mustRun(t, dir, "--no-backup", "add-peer", "--endpoint", "192.0.2.1:51820")
	assert.NoDirExists(t, filepath.Join(dir, ".conf_bak"))
}

func TestCheckReportsProblems(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	kp := testutil.GenerateKeyPair(t)
	testutil.WriteConfDir(t, dir, map[string]string{
		"wg0.conf": "[Interface]\n# hub\nAddress = 10.0.0.1/24\nListenPort = 51820\n",
		"a.conf":   "[Interface]\nPrivateKey = " + kp.Private + "\nAddress = 10.0.0.2/24\nBogus = 1\n",
	})

	out, err := run(t, dir, "check")
	require.Error(t, err)
	assert.Contains(t, out, "Bogus")
	assert.Contains(t, out, "error:")
}

func TestArchiveAndRestore(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	mustRun(t, dir, "init")
	mustRun(t, dir, "add-peer", "--name", "alice", "--endpoint", "192.0.2.1:51820")

	archives := t.TempDir()
	out := mustRun(t, dir, "archive", "-o", archives)
	path := strings.TrimSpace(out)
	assert.True(t, strings.HasSuffix(path, snapshot.Suffix))

	out = mustRun(t, dir, "archive", "list", path)
	assert.Contains(t, out, "alice.conf")
	assert.Contains(t, out, "wg0.conf")

	target := filepath.Join(t.TempDir(), "restored")
	out = mustRun(t, dir, "restore", path, "--to", target)
	assert.Contains(t, out, "Restored 2 files")

	want, err := os.ReadFile(filepath.Join(dir, "alice.conf"))
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(target, "alice.conf"))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = run(t, dir, "restore", path)
	assert.Error(t, err)
}
