// SPDX-License-Identifier: Apache-2.0

// Package history persists the append-only log of update attempts and
// answers "what version is currently installed" from that log.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// MaxRecords is the number of most-recent records retained on each write.
const MaxRecords = 100

// Outcome enumerates the terminal states of a single update attempt.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeDownloadFailed     Outcome = "download_failed"
	OutcomeChecksumMismatch   Outcome = "checksum_mismatch"
	OutcomeInstallFailed      Outcome = "install_failed"
	OutcomeRolledBack         Outcome = "rolled_back"
	OutcomeRollbackFailed     Outcome = "rollback_failed"
	OutcomeSkippedSameVersion Outcome = "skipped_same_version"
)

// Record is a single entry in the update history.
type Record struct {
	Timestamp        time.Time `json:"timestamp"`
	AttemptedVersion string    `json:"attempted_version"`
	PreviousVersion  string    `json:"previous_version"`
	Outcome          Outcome   `json:"outcome"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	DurationMS       int64     `json:"duration_ms,omitempty"`
}

// History is the in-memory, ordered sequence of Records, oldest first.
type History struct {
	path    string
	Records []Record
}

// Load reads the history file at path. A missing file yields an empty
// History. A corrupt file is logged as a warning and also yields an empty
// History — corruption is never fatal to the daemon.
func Load(path string) *History {
	h := &History{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("history: failed to read %s: %v", path, err)
		}
		return h
	}

	if err := json.Unmarshal(data, &h.Records); err != nil {
		log.Warnf("history: %s is corrupt, starting fresh: %v", path, err)
		h.Records = nil
	}

	return h
}

// Append adds record to the in-memory log, trims to MaxRecords, and
// persists crash-safely: write to a sibling temp file, fsync, rename over
// the target.
func (h *History) Append(record Record) error {
	h.Records = append(h.Records, record)
	if len(h.Records) > MaxRecords {
		h.Records = h.Records[len(h.Records)-MaxRecords:]
	}
	return h.save()
}

func (h *History) save() error {
	data, err := json.MarshalIndent(h.Records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	dir := filepath.Dir(h.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(h.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp history file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsync temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp history file: %w", err)
	}
	if err := os.Rename(tmpName, h.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp history file: %w", err)
	}
	return nil
}

// QueryLast returns up to the n most recent records, newest last.
func (h *History) QueryLast(n int) []Record {
	if n <= 0 || len(h.Records) == 0 {
		return nil
	}
	if n > len(h.Records) {
		n = len(h.Records)
	}
	return h.Records[len(h.Records)-n:]
}

// CurrentVersion derives the installed version from hist: the
// attempted_version of the most recent successful record, else "unknown".
// It takes History as an explicit parameter rather than the installer
// holding a reference to it, so the installer never reads history directly.
func CurrentVersion(hist *History) string {
	if hist == nil {
		return "unknown"
	}
	for i := len(hist.Records) - 1; i >= 0; i-- {
		if hist.Records[i].Outcome == OutcomeSuccess {
			return hist.Records[i].AttemptedVersion
		}
	}
	return "unknown"
}
