// SPDX-License-Identifier: Apache-2.0

// Package version implements the `otad version` subcommand.
package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCmd creates the version command. version is read at run time
// since it's only populated by main() after cobra commands are built.
func NewCmd(version *string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			v := *version
			if v == "" {
				v = "dev"
			}
			fmt.Printf("otad version %s\n", v)
		},
	}
}
