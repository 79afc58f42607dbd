// SPDX-License-Identifier: Apache-2.0

// Package lock provides an advisory, single-instance file lock guarding
// the kernel image and its backup slot while a transaction is in
// progress. Acquisition failure is never fatal: correctness of the
// update transaction does not depend on it.
package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock is a held advisory flock(2) on a file.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive, non-blocking advisory lock on the file at
// path, creating it if absent. Returns an error if the lock is already
// held elsewhere; callers should log this, not fail startup.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Lock{f: f}, nil
}

// Release unlocks and closes the underlying file. Safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("unlock: %w", err)
	}
	return l.f.Close()
}
