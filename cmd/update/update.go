// SPDX-License-Identifier: Apache-2.0

// Package update implements the `otad update` subcommand: a single
// discover -> probe -> download -> install pass, outside the daemon loop.
package update

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/daemon"
	"github.com/arbor-embedded/otad/pkg/errs"
	"github.com/arbor-embedded/otad/pkg/history"
	"github.com/arbor-embedded/otad/pkg/lock"
)

// outcomeErr maps a failed record's outcome to the taxonomy kind that
// drives the CLI's exit code for this subcommand.
func outcomeErr(rec history.Record) error {
	var kind errs.Kind
	switch rec.Outcome {
	case history.OutcomeDownloadFailed:
		kind = errs.KindNetwork
	case history.OutcomeChecksumMismatch:
		kind = errs.KindChecksumMismatch
	case history.OutcomeInstallFailed:
		kind = errs.KindSwapFailed
	case history.OutcomeRollbackFailed:
		kind = errs.KindRollbackFailed
	default:
		kind = errs.KindIO
	}
	return errs.New(kind, "cmd.update", fmt.Errorf("%s: %s", rec.Outcome, rec.ErrorMessage))
}

func NewCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Run a single update cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}

			l, err := lock.Acquire(cfg.LockFile)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not acquire lock, continuing without it: %v\n", err)
			} else {
				defer l.Release()
			}

			hist := history.Load(cfg.HistoryPath())
			rec, ok := daemon.RunCycle(context.Background(), cfg, hist)
			if !ok {
				fmt.Println(config.CurrentTheme.InfoMessage("update cancelled"))
				return nil
			}
			if err := hist.Append(rec); err != nil {
				return err
			}

			theme := config.CurrentTheme
			switch rec.Outcome {
			case history.OutcomeSuccess:
				fmt.Println(theme.SuccessMessage(fmt.Sprintf("installed %s", rec.AttemptedVersion)))
			case history.OutcomeSkippedSameVersion:
				fmt.Println(theme.InfoMessage(fmt.Sprintf("already up to date: %s", rec.PreviousVersion)))
			default:
				fmt.Println(theme.ErrorMessage(fmt.Sprintf("%s: %s", rec.Outcome, rec.ErrorMessage)))
				return outcomeErr(rec)
			}
			return nil
		},
	}
}
