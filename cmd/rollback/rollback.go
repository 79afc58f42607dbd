// SPDX-License-Identifier: Apache-2.0

// Package rollback implements the `otad rollback` subcommand: restores
// the last-known-good kernel image from the backup slot.
package rollback

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/errs"
	"github.com/arbor-embedded/otad/pkg/history"
	"github.com/arbor-embedded/otad/pkg/installer"
	"github.com/arbor-embedded/otad/pkg/lock"
)

func NewCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Restore the last-known-good kernel from backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}

			l, lockErr := lock.Acquire(cfg.LockFile)
			if lockErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not acquire lock, continuing without it: %v\n", lockErr)
			} else {
				defer l.Release()
			}

			hist := history.Load(cfg.HistoryPath())
			previous := installer.CurrentVersion(hist)

			in := installer.New(cfg, installer.NewOSFileOps())
			out := in.Rollback()

			rec := history.Record{
				Timestamp:       time.Now(),
				PreviousVersion: previous,
				Outcome:         out.Outcome,
			}
			if out.Err != nil {
				rec.ErrorMessage = out.Err.Error()
			}
			if err := hist.Append(rec); err != nil {
				return err
			}

			theme := config.CurrentTheme
			if out.Outcome == history.OutcomeRollbackFailed {
				fmt.Println(theme.ErrorMessage("rollback failed: OPERATOR ATTENTION REQUIRED"))
				return errs.New(errs.KindRollbackFailed, "cmd.rollback", out.Err)
			}

			fmt.Println(theme.SuccessMessage("rollback complete"))
			return nil
		},
	}
}
