// SPDX-License-Identifier: Apache-2.0

// Package check implements the `otad check` subcommand: a single pass of
// discovery and metadata probing, reporting whether a newer kernel is
// available without downloading or installing it.
package check

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/fetch"
	"github.com/arbor-embedded/otad/pkg/history"
	"github.com/arbor-embedded/otad/pkg/installer"
)

func NewCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer kernel version is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}

			ctx := context.Background()
			var server fetch.ServerInfo
			err = fetch.WithRetry(ctx, cfg.MaxRetries, "fetch.discover", func() error {
				var derr error
				server, derr = fetch.Discover(ctx, cfg)
				return derr
			})
			if err != nil {
				return err
			}

			var meta fetch.KernelMetadata
			err = fetch.WithRetry(ctx, cfg.MaxRetries, "fetch.probe", func() error {
				var perr error
				meta, perr = fetch.Probe(ctx, server, cfg)
				return perr
			})
			if err != nil {
				return err
			}

			hist := history.Load(cfg.HistoryPath())
			current := installer.CurrentVersion(hist)
			theme := config.CurrentTheme

			if meta.Version == current {
				fmt.Println(theme.InfoMessage(fmt.Sprintf("up to date: %s", current)))
				return nil
			}

			fmt.Println(theme.WarningMessage(fmt.Sprintf("update available: %s -> %s", current, meta.Version)))
			return nil
		},
	}
}
