// Package snapshot archives a configuration directory as a zstd-compressed tarball.
//
// Unlike the single rotating backup kept by Export, snapshots accumulate and
// are meant to be copied off the host.
package snapshot

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Suffix is the file extension of snapshots.
const Suffix = ".tar.zst"

// MaxEntrySize bounds every file Extract writes. Configuration files are
// a few hundred bytes.
const MaxEntrySize = 1 << 20

var (
	ErrUnsafeEntry = errors.New("archive entry escapes the target directory")
	ErrExists      = errors.New("file already exists")
	ErrTooLarge    = errors.New("archive entry too large")
)

// Entry is one file inside a snapshot.
type Entry struct {
	Name    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

// Name returns the file name of a snapshot taken at t.
func Name(t time.Time) string {
	return "wgconf-" + t.UTC().Format("20060102-150405") + Suffix
}

// Create archives every regular file directly inside srcDir into destDir
// and returns the archive's path. Subdirectories, backups included, are skipped.
func Create(srcDir, destDir string, now time.Time) (string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return "", fmt.Errorf("read dir %s: %w", srcDir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if err := os.MkdirAll(destDir, 0700); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(destDir, Name(now))
	tmp, err := os.CreateTemp(destDir, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp, srcDir, names); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename: %w", err)
	}
	return path, nil
}

func write(w io.Writer, srcDir string, names []string) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(enc)

	for _, name := range names {
		if err := addFile(tw, filepath.Join(srcDir, name), name); err != nil {
			_ = enc.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		_ = enc.Close()
		return fmt.Errorf("close tar: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return fmt.Errorf("tar header %s: %w", path, err)
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// walk calls fn for every regular file of the archive at path.
func walk(path string, fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// List returns the files stored in the archive at path.
func List(path string) ([]Entry, error) {
	var out []Entry
	err := walk(path, func(hdr *tar.Header, _ io.Reader) error {
		out = append(out, Entry{
			Name:    hdr.Name,
			Size:    hdr.Size,
			Mode:    hdr.FileInfo().Mode().Perm(),
			ModTime: hdr.ModTime,
		})
		return nil
	})
	return out, err
}

// Extract restores the archive at path into destDir. Existing files are
// never overwritten.
func Extract(path, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return nil, fmt.Errorf("create %s: %w", destDir, err)
	}

	var restored []string
	err := walk(path, func(hdr *tar.Header, r io.Reader) error {
		name := hdr.Name
		if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return fmt.Errorf("%q: %w", name, ErrUnsafeEntry)
		}
		if hdr.Size > MaxEntrySize {
			return fmt.Errorf("%s (%d bytes): %w", name, hdr.Size, ErrTooLarge)
		}
		target := filepath.Join(destDir, name)
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", name, ErrExists)
		}
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		n, err := io.CopyN(out, r, MaxEntrySize+1)
		if err != nil && !errors.Is(err, io.EOF) {
			_ = out.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
		if n > MaxEntrySize {
			_ = out.Close()
			_ = os.Remove(target)
			return fmt.Errorf("%s: %w", name, ErrTooLarge)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("close %s: %w", name, err)
		}
		restored = append(restored, name)
		return nil
	})
	return restored, err
}
