// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	checkcmd "github.com/arbor-embedded/otad/cmd/check"
	configcmd "github.com/arbor-embedded/otad/cmd/config"
	daemoncmd "github.com/arbor-embedded/otad/cmd/daemon"
	rollbackcmd "github.com/arbor-embedded/otad/cmd/rollback"
	statuscmd "github.com/arbor-embedded/otad/cmd/status"
	updatecmd "github.com/arbor-embedded/otad/cmd/update"
	versioncmd "github.com/arbor-embedded/otad/cmd/version"
	"github.com/arbor-embedded/otad/pkg/config"
)

var (
	// Version is assigned by main from its build-time version variable
	// (-ldflags "-X main.version=x.y.z") before Execute runs.
	Version string

	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "otad",
	Short: "Over-the-air kernel updater daemon",
	Long: `otad - Over-the-air kernel updater daemon

Discovers an update server by mDNS, polls it for kernel version
metadata, fetches and verifies the kernel artifact, and performs an
atomic in-place replacement of the active kernel image with automatic
rollback on failure.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "disabled" {
			log.SetOutput(io.Discard)
			return nil
		}

		var level log.Level
		switch logLevel {
		case "debug":
			level = log.DebugLevel
		case "info":
			level = log.InfoLevel
		case "warn":
			level = log.WarnLevel
		case "error":
			level = log.ErrorLevel
		default:
			level = log.InfoLevel
		}
		log.SetLevel(level)

		return nil
	},
}

// Execute runs the root command, printing a styled one-line error and
// mapping it to the stable exit code on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		theme := config.CurrentTheme
		fmt.Fprintf(os.Stderr, "%s %s\n", theme.ErrorStyle().Render("Error:"), err.Error())
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	log.SetReportTimestamp(false)
	log.SetLevel(log.InfoLevel)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "/etc/otad/config.toml", "path to the config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level: disabled, debug, info, warn, error")

	rootCmd.AddCommand(daemoncmd.NewCmd(&cfgFile))
	rootCmd.AddCommand(checkcmd.NewCmd(&cfgFile))
	rootCmd.AddCommand(updatecmd.NewCmd(&cfgFile))
	rootCmd.AddCommand(statuscmd.NewCmd(&cfgFile))
	rollbackCmd := rollbackcmd.NewCmd(&cfgFile)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(configcmd.NewCmd(&cfgFile))
	rootCmd.AddCommand(versioncmd.NewCmd(&Version))

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}
