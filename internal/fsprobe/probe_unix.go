//go:build !windows

package fsprobe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func readable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}

func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

// Available returns the bytes available to unprivileged users on the volume holding path.
func Available(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := int64(stat.Bsize) //nolint:unconvert
	return int64(stat.Bavail) * bsize, nil
}
