// SPDX-License-Identifier: Apache-2.0
package daemon

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/errs"
	"github.com/arbor-embedded/otad/pkg/fetch"
	"github.com/arbor-embedded/otad/pkg/history"
	"github.com/arbor-embedded/otad/pkg/installer"
)

// RunCycle executes one full update cycle: discover -> probe -> compare
// versions -> download -> install -> return the record to append to
// history. No failure kills the daemon; every outcome is captured in the
// returned Record, except Cancelled, which exits the cycle cleanly and
// asks the caller not to persist anything (the second return value is
// false).
func RunCycle(ctx context.Context, cfg *config.Config, hist *history.History) (history.Record, bool) {
	start := time.Now()
	previousVersion := installer.CurrentVersion(hist)

	deadline := cfg.DownloadTimeout * time.Duration(cfg.MaxRetries+1)
	cycleCtx, cancel := context.WithTimeout(ctx, deadline+30*time.Second)
	defer cancel()

	record := func(outcome history.Outcome, attemptedVersion string, err error) history.Record {
		rec := history.Record{
			Timestamp:        time.Now(),
			AttemptedVersion: attemptedVersion,
			PreviousVersion:  previousVersion,
			Outcome:          outcome,
			DurationMS:       time.Since(start).Milliseconds(),
		}
		if err != nil {
			rec.ErrorMessage = err.Error()
		}
		return rec
	}

	var server fetch.ServerInfo
	err := fetch.WithRetry(cycleCtx, cfg.MaxRetries, "fetch.discover", func() error {
		var derr error
		server, derr = fetch.Discover(cycleCtx, cfg)
		return derr
	})
	if err != nil {
		if isCancelled(err) {
			log.Infof("daemon.cycle: discovery cancelled, exiting cleanly")
			return history.Record{}, false
		}
		log.Errorf("daemon.cycle: discovery failed: %v", err)
		return record(history.OutcomeDownloadFailed, "", err), true
	}

	var meta fetch.KernelMetadata
	err = fetch.WithRetry(cycleCtx, cfg.MaxRetries, "fetch.probe", func() error {
		var perr error
		meta, perr = fetch.Probe(cycleCtx, server, cfg)
		return perr
	})
	if err != nil {
		if isCancelled(err) {
			log.Infof("daemon.cycle: probe cancelled, exiting cleanly")
			return history.Record{}, false
		}
		log.Errorf("daemon.cycle: probe failed: %v", err)
		return record(history.OutcomeDownloadFailed, "", err), true
	}

	if meta.Version == previousVersion {
		log.Infof("daemon.cycle: server version %s matches installed version, skipping", meta.Version)
		return record(history.OutcomeSkippedSameVersion, meta.Version, nil), true
	}

	var artifactPath string
	err = fetch.WithRetry(cycleCtx, cfg.MaxRetries, "fetch.download", func() error {
		var derr error
		artifactPath, derr = fetch.Download(cycleCtx, server, meta, cfg)
		return derr
	})
	if err != nil {
		if isCancelled(err) {
			log.Infof("daemon.cycle: download cancelled, exiting cleanly")
			return history.Record{}, false
		}
		var e *errs.Error
		if isErr(err, &e) && e.Kind == errs.KindChecksumMismatch {
			log.Errorf("daemon.cycle: checksum mismatch: %v", err)
			return record(history.OutcomeChecksumMismatch, meta.Version, err), true
		}
		log.Errorf("daemon.cycle: download failed: %v", err)
		return record(history.OutcomeDownloadFailed, meta.Version, err), true
	}

	in := installer.New(cfg, installer.NewOSFileOps())
	out := in.Install(artifactPath, meta.Version, previousVersion)

	rec := record(out.Outcome, meta.Version, out.Err)
	if out.Outcome == history.OutcomeRollbackFailed {
		log.Errorf("daemon.cycle: OPERATOR ATTENTION REQUIRED: rollback failed after install failure: %v", out.Err)
	}
	return rec, true
}

// isCancelled reports whether err is (or wraps) a Cancelled taxonomy error.
func isCancelled(err error) bool {
	var e *errs.Error
	return isErr(err, &e) && e.Kind == errs.KindCancelled
}

func isErr(err error, target **errs.Error) bool {
	for err != nil {
		if e, ok := err.(*errs.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
