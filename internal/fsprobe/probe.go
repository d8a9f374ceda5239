// Package fsprobe checks that configuration paths exist and are usable
// before anything is read or written.
package fsprobe

import (
	"errors"
	"fmt"
	"os"
)

var (
	ErrNotFound     = errors.New("path does not exist")
	ErrNotDirectory = errors.New("path is not a directory")
	ErrNotReadable  = errors.New("path is not readable")
	ErrNotWritable  = errors.New("path is not writable")
)

// Mode is the access a caller needs.
type Mode int

const (
	Read Mode = 1 << iota
	Write
)

// CheckDir verifies that path is a directory accessible with mode.
func CheckDir(path string, mode Mode) error {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	}
	return checkAccess(path, mode)
}

// CheckFile verifies that path exists, is not a directory and is accessible with mode.
func CheckFile(path string, mode Mode) error {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%s: is a directory: %w", path, ErrNotReadable)
	}
	return checkAccess(path, mode)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func checkAccess(path string, mode Mode) error {
	if mode&Read != 0 && !readable(path) {
		return fmt.Errorf("%s: %w", path, ErrNotReadable)
	}
	if mode&Write != 0 && !writable(path) {
		return fmt.Errorf("%s: %w", path, ErrNotWritable)
	}
	return nil
}
