// SPDX-License-Identifier: Apache-2.0

// Package fetch implements server discovery, metadata probing, and
// artifact download for the update pipeline.
package fetch

import (
	"fmt"

	"github.com/arbor-embedded/otad/pkg/util"
)

// ServerSource records how a ServerInfo was obtained.
type ServerSource string

const (
	SourceMDNS     ServerSource = "mdns"
	SourceFallback ServerSource = "fallback"
)

// ServerInfo is ephemeral: it lives for one update cycle.
type ServerInfo struct {
	Host   string
	Port   int
	Source ServerSource
}

// BaseURL returns the server's HTTP base URL.
func (s ServerInfo) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// KernelMetadata is the JSON payload returned by GET <base>/version.
type KernelMetadata struct {
	Version string `json:"version"`
	Size    int64  `json:"size"`
	SHA256  string `json:"sha256"`
	URL     string `json:"url"`
}

// Validate checks the invariants required of metadata before it is trusted:
// size must be at least 1 byte and sha256 must be a canonical 64-hex digest.
func (m KernelMetadata) Validate() error {
	if m.Size < 1 {
		return fmt.Errorf("metadata size must be >= 1, got %d", m.Size)
	}
	if !util.IsCanonicalSHA256(m.SHA256) {
		return fmt.Errorf("metadata sha256 is not a canonical 64-hex digest: %q", m.SHA256)
	}
	if m.Version == "" {
		return fmt.Errorf("metadata version is empty")
	}
	return nil
}
