// Package repo reads and writes a directory of WireGuard configuration files.
//
// The directory holds one coordinator file (wg0.conf by default) and one file
// per peer. Import assembles them into a model.Coordinator; Export writes the
// model back, rotating the previous files into a backup directory first.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wgconf/wgconf/internal/codec"
	"github.com/wgconf/wgconf/internal/diag"
	"github.com/wgconf/wgconf/internal/fsprobe"
	"github.com/wgconf/wgconf/internal/keys"
	"github.com/wgconf/wgconf/internal/metrics"
	"github.com/wgconf/wgconf/internal/model"
)

// Default names inside the configuration directory.
const (
	DefaultBackupDir  = ".conf_bak"
	DefaultStagingDir = ".conf_bak_new"

	confSuffix = ".conf"
)

var (
	ErrNotFound     = fsprobe.ErrNotFound
	ErrNotDirectory = fsprobe.ErrNotDirectory
	ErrNotReadable  = fsprobe.ErrNotReadable
	ErrNotWritable  = fsprobe.ErrNotWritable

	ErrIncomplete        = errors.New("configuration incomplete")
	ErrInvalidFilename   = errors.New("invalid file name")
	ErrDuplicateFilename = errors.New("duplicate file name")
)

// Repository is a configuration directory on disk.
type Repository struct {
	dir             string
	coordinatorFile string
	backupDir       string
	stagingDir      string
	disableBackup   bool

	deriver keys.Deriver
	sink    diag.Sink
	logger  zerolog.Logger
	metrics *metrics.RepoMetrics

	// afterStaging runs once the staging directory is filled, before it is
	// promoted. Tests use it to interrupt a backup.
	afterStaging func() error
}

// Option configures a Repository.
type Option func(*Repository)

// WithCoordinatorFile sets the coordinator's file name.
func WithCoordinatorFile(name string) Option {
	return func(r *Repository) { r.coordinatorFile = name }
}

// WithBackupDir sets the backup directory name, relative to the configuration directory.
func WithBackupDir(name string) Option {
	return func(r *Repository) { r.backupDir = name }
}

// WithStagingDir sets the staging directory name used while rotating backups.
func WithStagingDir(name string) Option {
	return func(r *Repository) { r.stagingDir = name }
}

// WithBackup enables or disables backup rotation on Export.
func WithBackup(enabled bool) Option {
	return func(r *Repository) { r.disableBackup = !enabled }
}

// WithDeriver sets how peer public keys are derived during Import.
func WithDeriver(d keys.Deriver) Option {
	return func(r *Repository) { r.deriver = d }
}

// WithSink sets where parse diagnostics are reported.
func WithSink(s diag.Sink) Option {
	return func(r *Repository) { r.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithMetrics sets the metrics updated by Import and Export.
func WithMetrics(m *metrics.RepoMetrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// New returns a Repository for dir. Nothing is touched until Import or Export.
func New(dir string, opts ...Option) *Repository {
	r := &Repository{
		dir:             dir,
		coordinatorFile: model.DefaultCoordinatorFile,
		backupDir:       DefaultBackupDir,
		stagingDir:      DefaultStagingDir,
		deriver:         keys.WireGuard{},
		sink:            diag.Discard,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the configuration directory.
func (r *Repository) Dir() string { return r.dir }

// CoordinatorPath returns the path of the coordinator file.
func (r *Repository) CoordinatorPath() string {
	return filepath.Join(r.dir, r.coordinatorFile)
}

// BackupPath returns the path of the backup directory.
func (r *Repository) BackupPath() string {
	return filepath.Join(r.dir, r.backupDir)
}

func (r *Repository) report(l diag.List) {
	diag.Emit(r.sink, l)
	if r.metrics != nil {
		diag.Emit(r.metrics, l)
	}
}

// Import reads every peer file, derives each peer's public key and then
// merges the coordinator file's [Peer] blocks into the peers. Parse problems
// go to the diagnostic sink; only I/O problems are returned.
func (r *Repository) Import() (*model.Coordinator, error) {
	if err := fsprobe.CheckDir(r.dir, fsprobe.Read); err != nil {
		return nil, err
	}

	names, err := r.peerFiles()
	if err != nil {
		return nil, err
	}

	c := model.NewCoordinator()
	c.Filename = r.coordinatorFile

	for _, name := range names {
		p := &model.Peer{Filename: name}
		if err := r.parseFile(name, func(f *os.File) (diag.List, error) {
			return codec.ParsePeer(f, p)
		}); err != nil {
			return nil, err
		}
		r.derive(p)
		c.Peers = append(c.Peers, p)
	}

	path := r.CoordinatorPath()
	if !fsprobe.Exists(path) {
		r.report(diag.List{{
			Severity: diag.Warning,
			File:     r.coordinatorFile,
			Message:  "coordinator file not found, starting without coordinator settings",
		}})
	} else if err := r.parseFile(r.coordinatorFile, func(f *os.File) (diag.List, error) {
		return codec.ParseCoordinator(f, c)
	}); err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.Imports.Inc()
		r.metrics.Peers.Set(float64(len(c.Peers)))
	}
	r.logger.Debug().Str("dir", r.dir).Int("peers", len(c.Peers)).Msg("configuration imported")
	return c, nil
}

func (r *Repository) parseFile(name string, parse func(*os.File) (diag.List, error)) error {
	path := filepath.Join(r.dir, name)
	if err := fsprobe.CheckFile(path, fsprobe.Read); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	d, err := parse(f)
	r.report(d)
	return err
}

func (r *Repository) derive(p *model.Peer) {
	if p.PrivateKey == "" {
		r.report(diag.List{{
			Severity: diag.Warning,
			File:     p.Filename,
			Key:      "PrivateKey",
			Message:  "no private key, peer cannot be matched with the coordinator",
		}})
		return
	}
	pub, err := r.deriver.PublicKey(p.PrivateKey)
	if err != nil {
		r.report(diag.List{{
			Severity: diag.Warning,
			File:     p.Filename,
			Key:      "PrivateKey",
			Message:  fmt.Sprintf("cannot derive public key: %v", err),
		}})
		return
	}
	p.Client.PublicKey = pub
}

// peerFiles lists the regular *.conf files of the directory other than the
// coordinator file, sorted by name.
func (r *Repository) peerFiles() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", r.dir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, confSuffix) || name == r.coordinatorFile {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
