// SPDX-License-Identifier: Apache-2.0
package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFile(t *testing.T) {
	h := Load(filepath.Join(t.TempDir(), "does_not_exist.json"))
	if len(h.Records) != 0 {
		t.Fatalf("expected empty history, got %d records", len(h.Records))
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	h := Load(path)
	if len(h.Records) != 0 {
		t.Fatalf("expected empty history for corrupt file, got %d records", len(h.Records))
	}
}

func TestAppendPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	h := Load(path)

	rec := Record{
		Timestamp:        time.Unix(0, 0).UTC(),
		AttemptedVersion: "6.9.1",
		PreviousVersion:  "6.9.0",
		Outcome:          OutcomeSuccess,
	}
	if err := h.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reloaded := Load(path)
	if len(reloaded.Records) != 1 {
		t.Fatalf("expected 1 record after reload, got %d", len(reloaded.Records))
	}
	if reloaded.Records[0].AttemptedVersion != "6.9.1" {
		t.Fatalf("unexpected attempted version: %q", reloaded.Records[0].AttemptedVersion)
	}
}

func TestAppendTrimsToMax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	h := Load(path)

	for i := 0; i < MaxRecords+10; i++ {
		if err := h.Append(Record{AttemptedVersion: "v", Outcome: OutcomeSuccess}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if len(h.Records) != MaxRecords {
		t.Fatalf("expected trimmed length %d, got %d", MaxRecords, len(h.Records))
	}
}

func TestQueryLast(t *testing.T) {
	h := &History{}
	for i := 0; i < 5; i++ {
		h.Records = append(h.Records, Record{AttemptedVersion: string(rune('a' + i))})
	}

	last := h.QueryLast(2)
	if len(last) != 2 {
		t.Fatalf("expected 2 records, got %d", len(last))
	}
	if last[len(last)-1].AttemptedVersion != "e" {
		t.Fatalf("expected last record to be newest, got %q", last[len(last)-1].AttemptedVersion)
	}

	if got := h.QueryLast(0); got != nil {
		t.Fatalf("expected nil for n=0, got %v", got)
	}
}

func TestCurrentVersionUnknownWhenNoSuccess(t *testing.T) {
	h := &History{Records: []Record{
		{AttemptedVersion: "6.9.1", Outcome: OutcomeDownloadFailed},
	}}
	if got := CurrentVersion(h); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func TestCurrentVersionSkipsFailuresAfterSuccess(t *testing.T) {
	h := &History{Records: []Record{
		{AttemptedVersion: "6.9.0", Outcome: OutcomeSuccess},
		{AttemptedVersion: "6.9.1", Outcome: OutcomeInstallFailed},
	}}
	if got := CurrentVersion(h); got != "6.9.0" {
		t.Fatalf("expected 6.9.0, got %q", got)
	}
}

func TestCurrentVersionNilHistory(t *testing.T) {
	if got := CurrentVersion(nil); got != "unknown" {
		t.Fatalf("expected unknown for nil history, got %q", got)
	}
}
