// SPDX-License-Identifier: Apache-2.0
package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/history"
)

func arm64Header(payload string) []byte {
	buf := make([]byte, arm64MagicOffset+len(arm64Magic)+len(payload))
	copy(buf[arm64MagicOffset:], arm64Magic)
	copy(buf[arm64MagicOffset+len(arm64Magic):], payload)
	return buf
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		KernelPath: filepath.Join(dir, "Image"),
		BackupPath: filepath.Join(dir, "Image.bak"),
	}
}

func TestInstallSuccess(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	if err := os.WriteFile(cfg.KernelPath, arm64Header("old"), 0o644); err != nil {
		t.Fatalf("setup kernel: %v", err)
	}
	artifact := filepath.Join(dir, "new-kernel")
	if err := os.WriteFile(artifact, arm64Header("new"), 0o644); err != nil {
		t.Fatalf("setup artifact: %v", err)
	}

	in := New(cfg, NewOSFileOps())
	out := in.Install(artifact, "6.9.1", "6.9.0")

	if out.Outcome != history.OutcomeSuccess {
		t.Fatalf("expected success, got %v (%v)", out.Outcome, out.Err)
	}
	if out.FinalState != StateCommitted {
		t.Fatalf("expected committed state, got %s", out.FinalState)
	}

	got, err := os.ReadFile(cfg.KernelPath)
	if err != nil {
		t.Fatalf("read kernel: %v", err)
	}
	want, _ := os.ReadFile(artifact)
	if string(got) != string(want) {
		t.Fatalf("kernel_path does not contain the new artifact")
	}

	if _, err := os.Stat(cfg.BackupPath); err != nil {
		t.Fatalf("expected backup to exist: %v", err)
	}

	for _, suffix := range []string{".new", ".restore"} {
		if _, err := os.Stat(cfg.KernelPath + suffix); !os.IsNotExist(err) {
			t.Fatalf("expected no leftover %s file", suffix)
		}
	}
}

func TestInstallRejectsEmptyArtifact(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	os.WriteFile(cfg.KernelPath, arm64Header("old"), 0o644)

	artifact := filepath.Join(dir, "empty")
	os.WriteFile(artifact, nil, 0o644)

	in := New(cfg, NewOSFileOps())
	out := in.Install(artifact, "6.9.1", "6.9.0")

	if out.Outcome != history.OutcomeInstallFailed {
		t.Fatalf("expected install_failed for empty artifact, got %v", out.Outcome)
	}
	if out.FinalState != StateIdle {
		t.Fatalf("expected no side effects (idle state), got %s", out.FinalState)
	}
}

func TestInstallRejectsMissingFormatMagic(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	os.WriteFile(cfg.KernelPath, arm64Header("old"), 0o644)

	artifact := filepath.Join(dir, "not-a-kernel")
	os.WriteFile(artifact, []byte("not a kernel image at all"), 0o644)

	in := New(cfg, NewOSFileOps())
	out := in.Install(artifact, "6.9.1", "6.9.0")

	if out.Outcome != history.OutcomeInstallFailed {
		t.Fatalf("expected install_failed for bad format, got %v", out.Outcome)
	}
}

func TestInstallSkipsFormatCheckWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.SkipFormatCheck = true
	os.WriteFile(cfg.KernelPath, []byte("old"), 0o644)

	artifact := filepath.Join(dir, "not-a-kernel")
	os.WriteFile(artifact, []byte("not a kernel image at all"), 0o644)

	in := New(cfg, NewOSFileOps())
	out := in.Install(artifact, "6.9.1", "6.9.0")

	if out.Outcome != history.OutcomeSuccess {
		t.Fatalf("expected success with skip_format_check, got %v (%v)", out.Outcome, out.Err)
	}
}

func TestInstallSwapFailureTriggersRollback(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	os.WriteFile(cfg.KernelPath, arm64Header("old"), 0o644)
	artifact := filepath.Join(dir, "new-kernel")
	os.WriteFile(artifact, arm64Header("new"), 0o644)

	ops := newFaultInjectingFileOps()
	ops.failRenameFor = cfg.KernelPath + ".new"

	in := New(cfg, ops)
	out := in.Install(artifact, "6.9.1", "6.9.0")

	if out.Outcome != history.OutcomeInstallFailed {
		t.Fatalf("expected install_failed, got %v (%v)", out.Outcome, out.Err)
	}
	if !out.RolledBack {
		t.Fatalf("expected rollback to have run")
	}
	if out.FinalState != StateRestored {
		t.Fatalf("expected restored state, got %s", out.FinalState)
	}

	got, _ := os.ReadFile(cfg.KernelPath)
	if string(got) != string(arm64Header("old")) {
		t.Fatalf("expected original kernel bytes restored, got %q", got)
	}
}

func TestInstallRollbackFailureYieldsBrokenState(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	os.WriteFile(cfg.KernelPath, arm64Header("old"), 0o644)
	artifact := filepath.Join(dir, "new-kernel")
	os.WriteFile(artifact, arm64Header("new"), 0o644)

	ops := newFaultInjectingFileOps()
	ops.failRenameFor = cfg.KernelPath + ".new"
	ops.failCopyFor = filepath.Join(dir, "Image.restore")

	in := New(cfg, ops)
	out := in.Install(artifact, "6.9.1", "6.9.0")

	if out.Outcome != history.OutcomeRollbackFailed {
		t.Fatalf("expected rollback_failed, got %v (%v)", out.Outcome, out.Err)
	}
	if out.FinalState != StateBroken {
		t.Fatalf("expected broken state, got %s", out.FinalState)
	}
}

func TestInstallInsufficientSpacePrecondition(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	os.WriteFile(cfg.KernelPath, arm64Header("old"), 0o644)
	artifact := filepath.Join(dir, "new-kernel")
	os.WriteFile(artifact, arm64Header("new"), 0o644)

	ops := newFaultInjectingFileOps()
	ops.freeSpaceForced = true
	ops.freeSpaceBytes = 1

	in := New(cfg, ops)
	out := in.Install(artifact, "6.9.1", "6.9.0")

	if out.Outcome != history.OutcomeInstallFailed {
		t.Fatalf("expected install_failed for low space, got %v", out.Outcome)
	}
	if out.FinalState != StateIdle {
		t.Fatalf("expected idle (no side effects), got %s", out.FinalState)
	}
}

func TestRollbackFailsWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	os.WriteFile(cfg.KernelPath, arm64Header("old"), 0o644)

	in := New(cfg, NewOSFileOps())
	out := in.Rollback()

	if out.Outcome != history.OutcomeRollbackFailed {
		t.Fatalf("expected rollback_failed without a backup, got %v", out.Outcome)
	}
}

func TestCurrentVersionDelegatesToHistory(t *testing.T) {
	hist := &history.History{Records: []history.Record{
		{AttemptedVersion: "6.9.0", Outcome: history.OutcomeSuccess},
	}}
	if got := CurrentVersion(hist); got != "6.9.0" {
		t.Fatalf("expected 6.9.0, got %q", got)
	}
}
