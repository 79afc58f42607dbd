// SPDX-License-Identifier: Apache-2.0
package installer

import (
	"fmt"
	"os"
)

// faultInjectingFileOps wraps the real filesystem but can be told to
// fail at specific points in the transaction, to drive the
// crash-injection properties of Install/Rollback.
type faultInjectingFileOps struct {
	real FileOps

	failCopyFor     string
	failFsyncFor    string
	failRenameFor   string
	freeSpaceBytes  uint64
	freeSpaceForced bool
}

func newFaultInjectingFileOps() *faultInjectingFileOps {
	return &faultInjectingFileOps{real: NewOSFileOps()}
}

func (f *faultInjectingFileOps) Copy(src, dst string) error {
	if f.failCopyFor != "" && dst == f.failCopyFor {
		return fmt.Errorf("injected copy failure for %s", dst)
	}
	if f.failFsyncFor != "" && dst == f.failFsyncFor {
		// Simulate partial write: data lands but fsync never completes.
		if err := os.WriteFile(dst, []byte("partial"), 0o644); err != nil {
			return err
		}
		return fmt.Errorf("injected fsync failure for %s", dst)
	}
	return f.real.Copy(src, dst)
}

func (f *faultInjectingFileOps) Rename(oldpath, newpath string) error {
	if f.failRenameFor != "" && oldpath == f.failRenameFor {
		return fmt.Errorf("injected rename failure for %s", oldpath)
	}
	return f.real.Rename(oldpath, newpath)
}

func (f *faultInjectingFileOps) SHA256(path string) (string, error) {
	return f.real.SHA256(path)
}

func (f *faultInjectingFileOps) Stat(path string) (int64, bool, error) {
	return f.real.Stat(path)
}

func (f *faultInjectingFileOps) FreeSpace(path string) (uint64, error) {
	if f.freeSpaceForced {
		return f.freeSpaceBytes, nil
	}
	return f.real.FreeSpace(path)
}

func (f *faultInjectingFileOps) Remove(path string) error {
	return f.real.Remove(path)
}
