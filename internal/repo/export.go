package repo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wgconf/wgconf/internal/codec"
	"github.com/wgconf/wgconf/internal/diag"
	"github.com/wgconf/wgconf/internal/fsprobe"
	"github.com/wgconf/wgconf/internal/model"
)

type outputFile struct {
	name string
	data string
}

// Export writes c to the directory. Every check runs before the first file
// is touched: a failed check leaves disk and model unchanged. Unless backups
// are disabled the current files are copied into the backup directory first.
func (r *Repository) Export(c *model.Coordinator) (err error) {
	defer func() {
		if err != nil && r.metrics != nil {
			r.metrics.ExportFailures.Inc()
		}
	}()

	if err := fsprobe.CheckDir(r.dir, fsprobe.Read|fsprobe.Write); err != nil {
		return err
	}
	if missing := c.Missing(); len(missing) > 0 {
		return fmt.Errorf("%s: missing %s: %w", r.coordinatorFile, strings.Join(missing, ", "), ErrIncomplete)
	}

	names, err := r.OutputNames(c)
	if err != nil {
		return err
	}

	outputs := make([]outputFile, 0, len(c.Peers)+1)
	outputs = append(outputs, outputFile{name: r.coordinatorFile, data: codec.RenderCoordinator(c)})
	for i, p := range c.Peers {
		if missing := peerMissing(p); len(missing) > 0 {
			r.report(diag.List{{
				Severity: diag.Warning,
				File:     names[i],
				Message:  fmt.Sprintf("incomplete configuration, missing %s", strings.Join(missing, ", ")),
			}})
		}
		text, err := codec.RenderPeer(c, i)
		if err != nil {
			return err
		}
		outputs = append(outputs, outputFile{name: names[i], data: text})
	}

	existing, err := r.existingFiles()
	if err != nil {
		return err
	}

	if len(existing) > 0 && !r.disableBackup {
		if err := r.rotateBackup(existing); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.Backups.Inc()
		}
	}

	for _, name := range existing {
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}

	for _, out := range outputs {
		if err := writeAtomic(filepath.Join(r.dir, out.name), []byte(out.data)); err != nil {
			return err
		}
	}

	for i, p := range c.Peers {
		p.Filename = names[i]
	}
	c.Filename = r.coordinatorFile

	if r.metrics != nil {
		r.metrics.Exports.Inc()
		r.metrics.FilesWritten.Add(float64(len(outputs)))
		r.metrics.Peers.Set(float64(len(c.Peers)))
		r.metrics.LastExport.Set(float64(time.Now().Unix()))
	}
	r.logger.Info().Str("dir", r.dir).Int("files", len(outputs)).Bool("backup", len(existing) > 0 && !r.disableBackup).Msg("configuration written")
	return nil
}

func peerMissing(p *model.Peer) []string {
	var missing []string
	if strings.TrimSpace(p.Address) == "" {
		missing = append(missing, "Address")
	}
	if strings.TrimSpace(p.PrivateKey) == "" {
		missing = append(missing, "PrivateKey")
	}
	return missing
}

// OutputNames returns the file name each peer will be written to, in peer
// order. A peer's Filename wins, then "<Name>.conf", then "Peer_<ID>.conf".
func (r *Repository) OutputNames(c *model.Coordinator) ([]string, error) {
	names := make([]string, len(c.Peers))
	seen := map[string]int{strings.ToLower(r.coordinatorFile): 0}

	for i, p := range c.Peers {
		name := p.Filename
		switch {
		case name != "":
		case p.Name != "":
			name = p.Name + confSuffix
		default:
			name = fmt.Sprintf("Peer_%d%s", model.DisplayID(i), confSuffix)
		}

		if err := validFilename(name); err != nil {
			return nil, fmt.Errorf("peer %d: %w", model.DisplayID(i), err)
		}
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			other := "the coordinator"
			if prev > 0 {
				other = fmt.Sprintf("peer %d", prev)
			}
			return nil, fmt.Errorf("peer %d: %q already used by %s: %w", model.DisplayID(i), name, other, ErrDuplicateFilename)
		}
		seen[key] = model.DisplayID(i)
		names[i] = name
	}
	return names, nil
}

func validFilename(name string) error {
	switch {
	case name != filepath.Base(name), strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%q must not contain a directory: %w", name, ErrInvalidFilename)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%q must not be hidden: %w", name, ErrInvalidFilename)
	case !strings.HasSuffix(name, confSuffix) || len(name) == len(confSuffix):
		return fmt.Errorf("%q must end in %s: %w", name, confSuffix, ErrInvalidFilename)
	}
	return nil
}

// existingFiles lists the regular files directly inside the directory.
func (r *Repository) existingFiles() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", r.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// rotateBackup copies files into the staging directory and then promotes
// staging to the backup directory. The originals stay in place until the
// promotion succeeded, so a failure at any point leaves either the old
// backup or the new one complete, and the live files untouched.
func (r *Repository) rotateBackup(files []string) error {
	staging := filepath.Join(r.dir, r.stagingDir)
	backup := r.BackupPath()

	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("remove stale staging dir: %w", err)
	}
	if err := os.Mkdir(staging, 0700); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	for _, name := range files {
		if err := copyFile(filepath.Join(r.dir, name), filepath.Join(staging, name)); err != nil {
			return err
		}
	}

	if r.afterStaging != nil {
		if err := r.afterStaging(); err != nil {
			return fmt.Errorf("backup interrupted: %w", err)
		}
	}

	if err := os.Rename(staging, backup); err == nil {
		r.logger.Debug().Str("backup", backup).Int("files", len(files)).Msg("backup rotated")
		return nil
	}

	// Renaming over a non-empty directory fails on most systems: move the
	// old backup aside first and drop it once the new one is in place.
	old := backup + "." + uuid.NewString()
	if err := os.Rename(backup, old); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("move old backup aside: %w", err)
	}
	if err := os.Rename(staging, backup); err != nil {
		_ = os.Rename(old, backup)
		return fmt.Errorf("promote backup: %w", err)
	}
	if err := os.RemoveAll(old); err != nil {
		r.logger.Warn().Err(err).Str("path", old).Msg("failed to remove previous backup")
	}
	r.logger.Debug().Str("backup", backup).Int("files", len(files)).Msg("backup rotated")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	fi, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	return out.Close()
}

// writeAtomic writes data to a uniquely named temp file next to path and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
