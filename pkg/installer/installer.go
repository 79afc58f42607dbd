// SPDX-License-Identifier: Apache-2.0
package installer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/errs"
	"github.com/arbor-embedded/otad/pkg/history"
)

// arm64Magic is the Linux ARM64 boot header magic, expected at offset 0x38.
var arm64Magic = []byte("ARM\x64")

const arm64MagicOffset = 0x38

// State names a point in the installer transaction's state machine:
// idle -> backing_up -> staging -> swapping -> verifying -> committed |
// rolling_back -> restored | broken. Only swapping and verifying can
// diverge into rolling_back.
type State string

const (
	StateIdle        State = "idle"
	StateBackingUp   State = "backing_up"
	StateStaging     State = "staging"
	StateSwapping    State = "swapping"
	StateVerifying   State = "verifying"
	StateCommitted   State = "committed"
	StateRollingBack State = "rolling_back"
	StateRestored    State = "restored"
	StateBroken      State = "broken"
)

// InstallOutcome is the result of a call to Install.
type InstallOutcome struct {
	Outcome         history.Outcome
	PreviousVersion string
	NewVersion      string
	RolledBack      bool
	FinalState      State
	Err             error
}

// RollbackOutcome is the result of a call to Rollback.
type RollbackOutcome struct {
	Outcome    history.Outcome
	FinalState State
	Err        error
}

// Installer performs the backup/stage/swap/verify transaction. It never
// reads history itself; CurrentVersion is a free function over an
// explicitly passed History so ownership stays one-directional.
type Installer struct {
	cfg *config.Config
	ops FileOps
}

// New builds an Installer bound to cfg and the given filesystem capability.
func New(cfg *config.Config, ops FileOps) *Installer {
	return &Installer{cfg: cfg, ops: ops}
}

// Install runs the preconditions and transaction described in the
// installer's component design, rolling back automatically on a
// swap/verify failure.
func (in *Installer) Install(newArtifactPath, newVersion, previousVersion string) InstallOutcome {
	if err := in.checkPreconditions(newArtifactPath); err != nil {
		return InstallOutcome{Outcome: history.OutcomeInstallFailed, PreviousVersion: previousVersion, NewVersion: newVersion, FinalState: StateIdle, Err: err}
	}

	state := StateBackingUp
	if err := in.backup(); err != nil {
		return InstallOutcome{Outcome: history.OutcomeInstallFailed, PreviousVersion: previousVersion, NewVersion: newVersion, FinalState: state, Err: err}
	}

	state = StateStaging
	stagedPath, stagedHash, err := in.stage(newArtifactPath)
	if err != nil {
		return InstallOutcome{Outcome: history.OutcomeInstallFailed, PreviousVersion: previousVersion, NewVersion: newVersion, FinalState: state, Err: err}
	}

	state = StateSwapping
	if err := in.ops.Rename(stagedPath, in.cfg.KernelPath); err != nil {
		in.ops.Remove(stagedPath)
		swapErr := errs.New(errs.KindSwapFailed, "installer.install", err)
		return in.compensate(swapErr, previousVersion, newVersion)
	}

	state = StateVerifying
	if err := in.verify(in.cfg.KernelPath, stagedHash); err != nil {
		return in.compensate(errs.New(errs.KindVerifyFailed, "installer.install", err), previousVersion, newVersion)
	}

	log.Infof("installer.install: committed version %s (previous %s)", newVersion, previousVersion)
	return InstallOutcome{
		Outcome:         history.OutcomeSuccess,
		PreviousVersion: previousVersion,
		NewVersion:      newVersion,
		FinalState:      StateCommitted,
	}
}

// checkPreconditions validates the artifact and environment before any
// side effect occurs; any failure returns without touching the
// filesystem.
func (in *Installer) checkPreconditions(newArtifactPath string) error {
	size, ok, err := in.ops.Stat(newArtifactPath)
	if err != nil {
		return errs.New(errs.KindIO, "installer.precondition", err)
	}
	if !ok {
		return errs.New(errs.KindIO, "installer.precondition", fmt.Errorf("artifact %s does not exist", newArtifactPath))
	}
	if size == 0 {
		return errs.New(errs.KindInvalidFormat, "installer.precondition", fmt.Errorf("artifact %s is empty", newArtifactPath))
	}

	currentSize, _, err := in.ops.Stat(in.cfg.KernelPath)
	if err != nil {
		return errs.New(errs.KindIO, "installer.precondition", err)
	}

	free, err := in.ops.FreeSpace(filepath.Dir(in.cfg.KernelPath))
	if err != nil {
		return errs.New(errs.KindIO, "installer.precondition", err)
	}
	if free < uint64(size+currentSize) {
		return errs.New(errs.KindIO, "installer.precondition", fmt.Errorf("insufficient free space: need %d, have %d", size+currentSize, free))
	}

	if !in.cfg.SkipFormatCheck {
		if err := checkARM64Format(newArtifactPath); err != nil {
			return errs.New(errs.KindInvalidFormat, "installer.precondition", err)
		}
	}

	return nil
}

func checkARM64Format(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, arm64MagicOffset+len(arm64Magic))
	n, err := f.ReadAt(buf, 0)
	if err != nil && n < len(buf) {
		return fmt.Errorf("%s is too short to contain an ARM64 boot header", path)
	}

	got := buf[arm64MagicOffset : arm64MagicOffset+len(arm64Magic)]
	if !bytes.Equal(got, arm64Magic) {
		return fmt.Errorf("%s does not contain the expected ARM64 boot header magic at offset 0x%x", path, arm64MagicOffset)
	}
	return nil
}

// backup copies kernel_path to backup_path via a temp file, fsync,
// rename, then verifies by re-hashing. A mismatch deletes the partial
// backup and fails.
func (in *Installer) backup() error {
	tmp := in.cfg.BackupPath + ".tmp"
	if err := in.ops.Copy(in.cfg.KernelPath, tmp); err != nil {
		in.ops.Remove(tmp)
		return errs.New(errs.KindBackupFailed, "installer.backup", err)
	}

	sourceHash, err := in.ops.SHA256(in.cfg.KernelPath)
	if err != nil {
		in.ops.Remove(tmp)
		return errs.New(errs.KindBackupFailed, "installer.backup", err)
	}
	tmpHash, err := in.ops.SHA256(tmp)
	if err != nil {
		in.ops.Remove(tmp)
		return errs.New(errs.KindBackupFailed, "installer.backup", err)
	}
	if tmpHash != sourceHash {
		in.ops.Remove(tmp)
		return errs.New(errs.KindBackupFailed, "installer.backup", fmt.Errorf("backup hash mismatch"))
	}

	if err := in.ops.Rename(tmp, in.cfg.BackupPath); err != nil {
		in.ops.Remove(tmp)
		return errs.New(errs.KindBackupFailed, "installer.backup", err)
	}
	return nil
}

// stage copies the new artifact next to kernel_path under a .new suffix
// and returns its path and verified hash.
func (in *Installer) stage(newArtifactPath string) (string, string, error) {
	kernelDir := filepath.Dir(in.cfg.KernelPath)
	staged := filepath.Join(kernelDir, filepath.Base(in.cfg.KernelPath)+".new")

	if err := in.ops.Copy(newArtifactPath, staged); err != nil {
		in.ops.Remove(staged)
		return "", "", errs.New(errs.KindIO, "installer.stage", err)
	}

	sourceHash, err := in.ops.SHA256(newArtifactPath)
	if err != nil {
		in.ops.Remove(staged)
		return "", "", errs.New(errs.KindIO, "installer.stage", err)
	}
	stagedHash, err := in.ops.SHA256(staged)
	if err != nil {
		in.ops.Remove(staged)
		return "", "", errs.New(errs.KindIO, "installer.stage", err)
	}
	if stagedHash != sourceHash {
		in.ops.Remove(staged)
		return "", "", errs.New(errs.KindIO, "installer.stage", fmt.Errorf("staged artifact hash mismatch"))
	}

	return staged, stagedHash, nil
}

func (in *Installer) verify(path, expectedHash string) error {
	got, err := in.ops.SHA256(path)
	if err != nil {
		return err
	}
	if got != expectedHash {
		return fmt.Errorf("verify: %s hash %s does not match expected %s", path, got, expectedHash)
	}
	return nil
}

// compensate invokes Rollback after a swap/verify failure and folds its
// outcome into the InstallOutcome.
func (in *Installer) compensate(cause *errs.Error, previousVersion, newVersion string) InstallOutcome {
	log.Errorf("installer.install: %v, rolling back", cause)
	rb := in.Rollback()

	if rb.Outcome == history.OutcomeRollbackFailed {
		return InstallOutcome{
			Outcome:         history.OutcomeRollbackFailed,
			PreviousVersion: previousVersion,
			NewVersion:      newVersion,
			RolledBack:      false,
			FinalState:      StateBroken,
			Err:             fmt.Errorf("%w; rollback also failed: %v", cause, rb.Err),
		}
	}

	return InstallOutcome{
		Outcome:         history.OutcomeInstallFailed,
		PreviousVersion: previousVersion,
		NewVersion:      newVersion,
		RolledBack:      true,
		FinalState:      StateRestored,
		Err:             cause,
	}
}

// Rollback restores backup_path over kernel_path. A verify failure here
// is RollbackFailed: the system is in an undefined boot state and this
// must be surfaced at the highest severity.
func (in *Installer) Rollback() RollbackOutcome {
	size, ok, err := in.ops.Stat(in.cfg.BackupPath)
	if err != nil {
		return RollbackOutcome{Outcome: history.OutcomeRollbackFailed, FinalState: StateBroken, Err: errs.New(errs.KindRollbackFailed, "installer.rollback", err)}
	}
	if !ok || size == 0 {
		return RollbackOutcome{Outcome: history.OutcomeRollbackFailed, FinalState: StateBroken, Err: errs.NoBackup}
	}

	kernelDir := filepath.Dir(in.cfg.KernelPath)
	restore := filepath.Join(kernelDir, filepath.Base(in.cfg.KernelPath)+".restore")

	if err := in.ops.Copy(in.cfg.BackupPath, restore); err != nil {
		in.ops.Remove(restore)
		return RollbackOutcome{Outcome: history.OutcomeRollbackFailed, FinalState: StateBroken, Err: errs.New(errs.KindRollbackFailed, "installer.rollback", err)}
	}

	backupHash, err := in.ops.SHA256(in.cfg.BackupPath)
	if err != nil {
		in.ops.Remove(restore)
		return RollbackOutcome{Outcome: history.OutcomeRollbackFailed, FinalState: StateBroken, Err: errs.New(errs.KindRollbackFailed, "installer.rollback", err)}
	}
	restoreHash, err := in.ops.SHA256(restore)
	if err != nil {
		in.ops.Remove(restore)
		return RollbackOutcome{Outcome: history.OutcomeRollbackFailed, FinalState: StateBroken, Err: errs.New(errs.KindRollbackFailed, "installer.rollback", err)}
	}
	if restoreHash != backupHash {
		in.ops.Remove(restore)
		return RollbackOutcome{Outcome: history.OutcomeRollbackFailed, FinalState: StateBroken, Err: errs.New(errs.KindRollbackFailed, "installer.rollback", fmt.Errorf("restore hash mismatch"))}
	}

	if err := in.ops.Rename(restore, in.cfg.KernelPath); err != nil {
		in.ops.Remove(restore)
		return RollbackOutcome{Outcome: history.OutcomeRollbackFailed, FinalState: StateBroken, Err: errs.New(errs.KindRollbackFailed, "installer.rollback", err)}
	}

	if err := in.verify(in.cfg.KernelPath, backupHash); err != nil {
		log.Errorf("installer.rollback: OPERATOR ATTENTION REQUIRED: %v", err)
		return RollbackOutcome{Outcome: history.OutcomeRollbackFailed, FinalState: StateBroken, Err: errs.New(errs.KindRollbackFailed, "installer.rollback", err)}
	}

	return RollbackOutcome{Outcome: history.OutcomeRolledBack, FinalState: StateRestored}
}

// CurrentVersion derives the installed version from hist, without the
// Installer holding a reference to history itself.
func CurrentVersion(hist *history.History) string {
	return history.CurrentVersion(hist)
}
