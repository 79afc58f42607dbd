// SPDX-License-Identifier: Apache-2.0
package cmd

import "github.com/arbor-embedded/otad/pkg/errs"

// exitCodeFor maps a command's terminal error to the stable CLI exit
// code documented for the external interface.
func exitCodeFor(err error) int {
	return errs.ExitCode(err)
}
