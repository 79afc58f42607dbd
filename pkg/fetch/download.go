// SPDX-License-Identifier: Apache-2.0
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/errs"
)

// Download streams the kernel artifact described by meta from server to
// <download_dir>/kernel-<version>, verifying size and SHA-256 as bytes
// land on disk. The temp file is removed on any failure path.
func Download(ctx context.Context, server ServerInfo, meta KernelMetadata, cfg *config.Config) (string, error) {
	url := artifactURL(server, meta)
	log.Debugf("fetch.download: downloading %s to %s", url, cfg.DownloadDir)

	client := &http.Client{Timeout: cfg.DownloadTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errs.New(errs.KindNetwork, "fetch.download", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.New(errs.KindCancelled, "fetch.download", ctx.Err())
		}
		return "", errs.New(errs.KindNetwork, "fetch.download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errs.NewHTTPStatus(resp.StatusCode, "fetch.download")
	}

	tmpPath := filepath.Join(cfg.DownloadDir, fmt.Sprintf("kernel-%s.tmp", meta.Version))
	finalPath := filepath.Join(cfg.DownloadDir, fmt.Sprintf("kernel-%s", meta.Version))

	if err := streamToFile(ctx, resp.Body, tmpPath, meta); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", errs.New(errs.KindIO, "fetch.download", fmt.Errorf("rename downloaded artifact: %w", err))
	}

	log.Debugf("fetch.download: complete, wrote %s", finalPath)
	return finalPath, nil
}

func streamToFile(ctx context.Context, body io.Reader, dest string, meta KernelMetadata) error {
	out, err := os.Create(dest)
	if err != nil {
		return errs.New(errs.KindIO, "fetch.download", fmt.Errorf("create temp file: %w", err))
	}
	defer out.Close()

	hash := sha256.New()
	written, err := io.Copy(out, io.TeeReader(body, hash))
	if err != nil {
		if ctx.Err() != nil {
			return errs.New(errs.KindCancelled, "fetch.download", ctx.Err())
		}
		return errs.New(errs.KindNetwork, "fetch.download", fmt.Errorf("stream body: %w", err))
	}

	if err := out.Sync(); err != nil {
		return errs.New(errs.KindIO, "fetch.download", fmt.Errorf("fsync downloaded artifact: %w", err))
	}

	if written != meta.Size {
		return errs.New(errs.KindChecksumMismatch, "fetch.download", fmt.Errorf("downloaded %d bytes, expected %d", written, meta.Size))
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(digest, meta.SHA256) {
		return errs.New(errs.KindChecksumMismatch, "fetch.download", fmt.Errorf("sha256 mismatch: got %s, want %s", digest, meta.SHA256))
	}

	return nil
}

// artifactURL composes the artifact URL: absolute paths (starting with
// "/") are joined to the server's base, relative ones joined under
// <base>/.
func artifactURL(server ServerInfo, meta KernelMetadata) string {
	if strings.HasPrefix(meta.URL, "/") {
		return server.BaseURL() + meta.URL
	}
	return server.BaseURL() + "/" + meta.URL
}
