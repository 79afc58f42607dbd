// SPDX-License-Identifier: Apache-2.0
package main

import "github.com/arbor-embedded/otad/cmd"

// version is set at build time via:
// -ldflags "-X main.version=x.y.z"
var version string

func main() {
	cmd.Version = version
	cmd.Execute()
}
