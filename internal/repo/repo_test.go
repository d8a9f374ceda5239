package repo

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wgconf/wgconf/internal/diag"
	"github.com/wgconf/wgconf/internal/keys"
	"github.com/wgconf/wgconf/internal/metrics"
	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/testutil"
)

var aliceBobKeys = &keys.Static{Pairs: [][2]string{
	{"PRIV_A", "PUB_A"},
	{"PRIV_B", "PUB_B"},
}}

func aliceBob() *model.Coordinator {
	c := model.NewCoordinator()
	c.Address = "10.0.0.1/24"
	c.PrivateKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	c.ListenPort = "51820"
	c.Peers = []*model.Peer{
		{
			Name:      "alice",
			Interface: model.Interface{Address: "10.0.0.2/24", PrivateKey: "PRIV_A"},
			Remote:    model.PeerSection{PublicKey: "PUB_S", AllowedIPs: "10.0.0.0/24", Endpoint: "vpn.example.com:51820"},
			Client:    model.PeerSection{PublicKey: "PUB_A", AllowedIPs: "10.0.0.2/32"},
		},
		{
			Name:      "bob",
			Interface: model.Interface{Address: "10.0.0.3/24", PrivateKey: "PRIV_B"},
			Remote:    model.PeerSection{PublicKey: "PUB_S", AllowedIPs: "10.0.0.0/24", Endpoint: "vpn.example.com:51820"},
			Client:    model.PeerSection{PublicKey: "PUB_B", AllowedIPs: "10.0.0.3/32"},
		},
	}
	return c
}

func TestExportImport_AliceBob(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	r := New(dir, WithDeriver(aliceBobKeys))
	orig := aliceBob()
	require.NoError(t, r.Export(orig))

	files := testutil.ReadConfDir(t, dir)
	assert.Equal(t, []string{"alice.conf", "bob.conf", "wg0.conf"}, testutil.FileNames(files))
	assert.Equal(t, "alice.conf", orig.Peers[0].Filename, "file names are recorded after a successful export")

	got, err := r.Import()
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1/24", got.Address)
	assert.Equal(t, orig.PrivateKey, got.PrivateKey)
	require.Len(t, got.Peers, 2)
	assert.Equal(t, "alice", got.Peers[0].Name)
	assert.Equal(t, "bob", got.Peers[1].Name)
	assert.Equal(t, "PUB_A", got.Peers[0].Client.PublicKey)
	assert.Equal(t, "PUB_B", got.Peers[1].Client.PublicKey)
	assert.Equal(t, "10.0.0.3/32", got.Peers[1].Client.AllowedIPs)
	assert.Equal(t, orig, got)
}

func TestImport_RealKeys(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	server := testutil.GenerateKeyPair(t)
	alice := testutil.GenerateKeyPair(t)
	bob := testutil.GenerateKeyPair(t)

	testutil.WriteConfDir(t, dir, map[string]string{
		"wg0.conf": "[Interface]\nAddress = 10.0.0.1/24\nPrivateKey = " + server.Private + "\n\n" +
			"[Peer]\nPublicKey = " + bob.Public + "\nAllowedIPs = 10.0.0.3/32\n\n" +
			"[Peer]\nPublicKey = " + alice.Public + "\nAllowedIPs = 10.0.0.2/32\n",
		"alice.conf": "[Interface]\n# alice\nAddress = 10.0.0.2/24\nPrivateKey = " + alice.Private + "\n[Peer]\nPublicKey = " + server.Public + "\n",
		"bob.conf":   "[Interface]\n# bob\nAddress = 10.0.0.3/24\nPrivateKey = " + bob.Private + "\n[Peer]\nPublicKey = " + server.Public + "\n",
		"notes.txt":  "ignored",
	})

	sink := &diag.Collector{}
	c, err := New(dir, WithSink(sink)).Import()
	require.NoError(t, err)

	assert.Empty(t, sink.List)
	require.Len(t, c.Peers, 2)
	assert.Equal(t, "alice.conf", c.Peers[0].Filename)
	assert.Equal(t, alice.Public, c.Peers[0].Client.PublicKey)
	assert.Equal(t, "10.0.0.2/32", c.Peers[0].Client.AllowedIPs)
	assert.Equal(t, "10.0.0.3/32", c.Peers[1].Client.AllowedIPs)
	assert.Equal(t, server.Public, c.Peers[1].Remote.PublicKey)
}

func TestImport_Diagnostics(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	testutil.WriteConfDir(t, dir, map[string]string{
		"wg0.conf":   "[Interface]\nAddress = 10.0.0.1/24\n[Peer]\nPublicKey = STRANGER\n",
		"alice.conf": "[Interface]\nAddress = 10.0.0.2/24\nPrivateKey = PRIV_A\nBogus = 1\n",
	})

	sink := &diag.Collector{}
	m := metrics.New(prometheus.NewRegistry())
	c, err := New(dir, WithSink(sink), WithDeriver(aliceBobKeys), WithMetrics(m)).Import()
	require.NoError(t, err)
	require.Len(t, c.Peers, 1)

	var files []string
	for _, d := range sink.List {
		files = append(files, d.File)
	}
	assert.Contains(t, files, "alice.conf")
	assert.Contains(t, files, "wg0.conf")
	assert.Len(t, sink.List, 3, "unknown key, missing PrivateKey, unmatched block")
	assert.Equal(t, 3.0, promtest.ToFloat64(m.Diagnostics.WithLabelValues("warning")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Imports))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Peers))
}

func TestImport_CoordinatorAbsent(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()
	testutil.TempFile(t, dir, "alice.conf", "[Interface]\nAddress = 10.0.0.2/24\nPrivateKey = PRIV_A\n")

	sink := &diag.Collector{}
	c, err := New(dir, WithSink(sink), WithDeriver(aliceBobKeys)).Import()
	require.NoError(t, err)

	require.Len(t, c.Peers, 1)
	assert.Equal(t, "PUB_A", c.Peers[0].Client.PublicKey)
	require.Len(t, sink.List, 1)
	assert.Equal(t, "wg0.conf", sink.List[0].File)
	assert.Equal(t, diag.Warning, sink.List[0].Severity)
}

func TestImport_PeerWithoutPrivateKey(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()
	testutil.TempFile(t, dir, "x.conf", "[Interface]\nAddress = 10.0.0.2/24\n")
	testutil.TempFile(t, dir, "wg0.conf", "[Interface]\nAddress = 10.0.0.1/24\nPrivateKey = K\n")

	sink := &diag.Collector{}
	c, err := New(dir, WithSink(sink)).Import()
	require.NoError(t, err)
	require.Len(t, c.Peers, 1)
	assert.Empty(t, c.Peers[0].Client.PublicKey)

	var reported []string
	for _, d := range sink.List {
		reported = append(reported, d.Key)
	}
	assert.Contains(t, reported, "PrivateKey")
}

func TestImport_Errors(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()
	file := testutil.TempFile(t, dir, "wg0.conf", "")

	_, err := New(filepath.Join(dir, "missing")).Import()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = New(file).Import()
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestImport_Unreadable(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	testutil.TempFile(t, dir, "alice.conf", "[Interface]\n")
	require.NoError(t, os.Chmod(filepath.Join(dir, "alice.conf"), 0200))

	_, err := New(dir).Import()
	assert.ErrorIs(t, err, ErrNotReadable)

	require.NoError(t, os.Chmod(dir, 0500))
	defer func() { _ = os.Chmod(dir, 0700) }()
	assert.ErrorIs(t, New(dir).Export(aliceBob()), ErrNotWritable)
}

func TestExport_Validation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *model.Coordinator)
		wantErr error
	}{
		{
			name:    "coordinator missing private key",
			modify:  func(c *model.Coordinator) { c.PrivateKey = "" },
			wantErr: ErrIncomplete,
		},
		{
			name:    "path in filename",
			modify:  func(c *model.Coordinator) { c.Peers[0].Filename = "../escape.conf" },
			wantErr: ErrInvalidFilename,
		},
		{
			name:    "wrong extension",
			modify:  func(c *model.Coordinator) { c.Peers[0].Filename = "alice.txt" },
			wantErr: ErrInvalidFilename,
		},
		{
			name:    "name with slash",
			modify:  func(c *model.Coordinator) { c.Peers[0].Name = "a/b" },
			wantErr: ErrInvalidFilename,
		},
		{
			name:    "duplicate names",
			modify:  func(c *model.Coordinator) { c.Peers[1].Name = "alice" },
			wantErr: ErrDuplicateFilename,
		},
		{
			name:    "coordinator file name",
			modify:  func(c *model.Coordinator) { c.Peers[1].Filename = "wg0.conf" },
			wantErr: ErrDuplicateFilename,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, cleanup := testutil.TempDir(t)
			defer cleanup()
			testutil.TempFile(t, dir, "wg0.conf", "old")

			c := aliceBob()
			tt.modify(c)
			err := New(dir).Export(c)
			assert.ErrorIs(t, err, tt.wantErr)

			files := testutil.ReadConfDir(t, dir)
			assert.Equal(t, map[string]string{"wg0.conf": "old"}, files, "nothing is touched on a failed check")
			assert.NoDirExists(t, filepath.Join(dir, DefaultBackupDir))
			assert.NotEqual(t, "bob.conf", c.Peers[1].Filename, "file names are only recorded on success")
		})
	}
}

func TestOutputNames(t *testing.T) {
	c := aliceBob()
	c.Peers = append(c.Peers, &model.Peer{}, &model.Peer{Filename: "custom.conf", Name: "ignored"})

	names, err := New(t.TempDir()).OutputNames(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice.conf", "bob.conf", "Peer_3.conf", "custom.conf"}, names)
}

func TestExport_BackupRotation(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	m := metrics.New(prometheus.NewRegistry())
	r := New(dir, WithDeriver(aliceBobKeys), WithMetrics(m))

	testutil.WriteConfDir(t, dir, map[string]string{"wg0.conf": "first", "old.conf": "gone soon"})
	require.NoError(t, r.Export(aliceBob()))

	backup := testutil.ReadConfDir(t, r.BackupPath())
	assert.Equal(t, map[string]string{"wg0.conf": "first", "old.conf": "gone soon"}, backup)
	assert.NoFileExists(t, filepath.Join(dir, "old.conf"), "stale files are removed")
	assert.NoDirExists(t, filepath.Join(dir, DefaultStagingDir))

	current := testutil.ReadConfDir(t, dir)
	require.NoError(t, r.Export(aliceBob()))
	assert.Equal(t, current, testutil.ReadConfDir(t, r.BackupPath()), "second export replaces the backup")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	assert.Equal(t, []string{DefaultBackupDir}, dirs, "the previous backup is dropped after promotion")

	assert.Equal(t, 2.0, promtest.ToFloat64(m.Backups))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.Exports))
	assert.Equal(t, 6.0, promtest.ToFloat64(m.FilesWritten))
}

func TestExport_BackupDisabled(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()
	testutil.TempFile(t, dir, "wg0.conf", "first")

	require.NoError(t, New(dir, WithBackup(false)).Export(aliceBob()))
	assert.NoDirExists(t, filepath.Join(dir, DefaultBackupDir))
	assert.FileExists(t, filepath.Join(dir, "alice.conf"))
}

func TestExport_InterruptedBackupLosesNothing(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	r := New(dir, WithDeriver(aliceBobKeys))
	testutil.WriteConfDir(t, dir, map[string]string{"wg0.conf": "generation 1"})
	require.NoError(t, r.Export(aliceBob()))
	live := testutil.ReadConfDir(t, dir)

	m := metrics.New(prometheus.NewRegistry())
	r.metrics = m
	crash := errors.New("power cut")
	r.afterStaging = func() error { return crash }

	err := r.Export(aliceBob())
	require.ErrorIs(t, err, crash)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ExportFailures))

	assert.Equal(t, live, testutil.ReadConfDir(t, dir), "live files are untouched")
	assert.Equal(t, map[string]string{"wg0.conf": "generation 1"}, testutil.ReadConfDir(t, r.BackupPath()), "old backup intact")
	assert.Equal(t, live, testutil.ReadConfDir(t, filepath.Join(dir, DefaultStagingDir)), "staging holds a full copy")

	r.afterStaging = nil
	require.NoError(t, r.Export(aliceBob()))
	assert.NoDirExists(t, filepath.Join(dir, DefaultStagingDir))
	assert.Equal(t, live, testutil.ReadConfDir(t, r.BackupPath()))
}

func TestExport_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	require.NoError(t, New(dir).Export(aliceBob()))
	fi, err := os.Stat(filepath.Join(dir, "alice.conf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
}
