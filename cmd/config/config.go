// SPDX-License-Identifier: Apache-2.0

// Package config implements the `otad config` subcommand group: `show`
// and `write-default`.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	otaconfig "github.com/arbor-embedded/otad/pkg/config"
)

func NewCmd(cfgFile *string) *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize the daemon configuration",
	}

	root.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := otaconfig.Load(*cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", *cfg)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "write-default",
		Short: "Write a template config file if one is not already present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := otaconfig.WriteDefault(*cfgFile); err != nil {
				return err
			}
			fmt.Printf("wrote default config to %s\n", *cfgFile)
			return nil
		},
	})

	return root
}
