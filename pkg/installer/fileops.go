// SPDX-License-Identifier: Apache-2.0

// Package installer performs the backup/stage/swap/verify transaction
// that replaces the live kernel image, with automatic rollback on
// failure.
package installer

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/arbor-embedded/otad/pkg/util"
)

// FileOps is the narrow filesystem capability seam used by the
// transaction: copy (with fsync), rename, remove, and the hash, stat and
// free-space queries the transaction needs. Production binds it
// to real os/syscall calls; tests bind a fault-injecting double to drive
// crash-injection properties.
type FileOps interface {
	// Copy reads all of src and writes it to dst, fsyncing dst before
	// returning. dst is created if absent, truncated if present.
	Copy(src, dst string) error
	// Rename renames oldpath to newpath, both within the same directory.
	Rename(oldpath, newpath string) error
	// SHA256 computes the SHA-256 digest of the file at path.
	SHA256(path string) (string, error)
	// Stat returns size and existence of path. ok is false if path is
	// absent; err is non-nil only for errors other than "not exist".
	Stat(path string) (size int64, ok bool, err error)
	// FreeSpace returns the bytes free on the filesystem containing path.
	FreeSpace(path string) (uint64, error)
	// Remove deletes path, ignoring a "not exist" error.
	Remove(path string) error
}

// osFileOps is the production FileOps backed by the real filesystem.
type osFileOps struct{}

// NewOSFileOps returns the production filesystem binding.
func NewOSFileOps() FileOps { return osFileOps{} }

func (osFileOps) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create destination %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", dst, err)
	}
	return nil
}

func (osFileOps) Rename(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", oldpath, newpath, err)
	}
	return nil
}

func (osFileOps) SHA256(path string) (string, error) {
	digest, err := util.CalculateSHA256(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return digest, nil
}

func (osFileOps) Stat(path string) (int64, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), true, nil
}

func (osFileOps) FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

func (osFileOps) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
