// SPDX-License-Identifier: Apache-2.0
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/errs"
)

// Probe queries the server's /version endpoint and returns parsed,
// validated metadata about the newest kernel it advertises.
func Probe(ctx context.Context, server ServerInfo, cfg *config.Config) (KernelMetadata, error) {
	url := server.BaseURL() + "/version"

	client := &http.Client{Timeout: cfg.DownloadTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return KernelMetadata{}, errs.New(errs.KindNetwork, "fetch.probe", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return KernelMetadata{}, errs.New(errs.KindCancelled, "fetch.probe", ctx.Err())
		}
		return KernelMetadata{}, errs.New(errs.KindNetwork, "fetch.probe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return KernelMetadata{}, errs.NewHTTPStatus(resp.StatusCode, "fetch.probe")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return KernelMetadata{}, errs.New(errs.KindNetwork, "fetch.probe", err)
	}

	var meta KernelMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return KernelMetadata{}, errs.New(errs.KindInvalidFormat, "fetch.probe", fmt.Errorf("decode /version response: %w", err))
	}

	if err := meta.Validate(); err != nil {
		return KernelMetadata{}, errs.New(errs.KindInvalidFormat, "fetch.probe", err)
	}

	return meta, nil
}

// HealthStatus is the optional /health response, exposed for external
// tooling. The daemon and CLI subcommands never call this themselves.
type HealthStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Health queries the server's optional /health endpoint.
func Health(ctx context.Context, server ServerInfo, cfg *config.Config) (HealthStatus, error) {
	url := server.BaseURL() + "/health"

	client := &http.Client{Timeout: cfg.DownloadTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthStatus{}, errs.New(errs.KindNetwork, "fetch.health", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return HealthStatus{}, errs.New(errs.KindNetwork, "fetch.health", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, errs.NewHTTPStatus(resp.StatusCode, "fetch.health")
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return HealthStatus{}, errs.New(errs.KindInvalidFormat, "fetch.health", err)
	}
	return status, nil
}
