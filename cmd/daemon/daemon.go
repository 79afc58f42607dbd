// SPDX-License-Identifier: Apache-2.0

// Package daemon implements the `otad daemon` subcommand: the long-lived
// process that drives the update loop.
package daemon

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arbor-embedded/otad/pkg/config"
	daemonpkg "github.com/arbor-embedded/otad/pkg/daemon"
)

// NewCmd builds the `daemon` subcommand, reading --config from cfgFile.
func NewCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the update loop as a long-lived process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}

			d := daemonpkg.New(*cfgFile, cfg)
			return d.Run(context.Background())
		},
	}
}
