// SPDX-License-Identifier: Apache-2.0

// Package status implements the `otad status` subcommand: reports the
// installed version and the outcome of recent update attempts.
package status

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/history"
	"github.com/arbor-embedded/otad/pkg/installer"
)

func NewCmd(cfgFile *string) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the installed version and recent update history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}

			// status opens the history file read-only; it never mutates it.
			hist := history.Load(cfg.HistoryPath())
			theme := config.CurrentTheme

			current := installer.CurrentVersion(hist)
			fmt.Println(theme.InfoMessage(fmt.Sprintf("installed version: %s", current)))

			records := hist.QueryLast(n)
			if len(records) == 0 {
				fmt.Println(theme.SubtleStyle().Render("no update history recorded"))
				return nil
			}

			fmt.Println("recent attempts:")
			for _, rec := range records {
				line := fmt.Sprintf("  %s  %s -> %s  %s",
					rec.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
					rec.PreviousVersion, rec.AttemptedVersion, rec.Outcome)
				if rec.ErrorMessage != "" {
					line += fmt.Sprintf("  (%s)", rec.ErrorMessage)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&n, "last", 10, "number of recent history entries to show")
	return cmd
}
