// SPDX-License-Identifier: Apache-2.0
package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/errs"
)

func TestProbeParsesMetadata(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"6.9.1","size":1024,"sha256":"` + mustHex64() + `","url":"/artifact"}`))
	}))
	defer ts.Close()

	cfg := &config.Config{DownloadTimeout: 5 * time.Second}
	server := serverFromTestServer(t, ts)

	meta, err := Probe(context.Background(), server, cfg)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if meta.Version != "6.9.1" || meta.Size != 1024 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestProbeRejects5xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := &config.Config{DownloadTimeout: 5 * time.Second}
	server := serverFromTestServer(t, ts)

	if _, err := Probe(context.Background(), server, cfg); err == nil {
		t.Fatalf("expected error for 5xx response")
	}
}

func mustHex64() string {
	return "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85"
}

// TestProbeCancelledContextYieldsCancelledKind exercises the "HTTP
// connect" suspension point named in the cancellation-promptness property:
// a context cancelled before the request is sent must be classified as
// Cancelled, not a generic network error.
func TestProbeCancelledContextYieldsCancelledKind(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"version":"6.9.1","size":1024,"sha256":"` + mustHex64() + `","url":"/artifact"}`))
	}))
	defer ts.Close()

	cfg := &config.Config{DownloadTimeout: 5 * time.Second}
	server := serverFromTestServer(t, ts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Probe(ctx, server, cfg)
	if err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	var e *errs.Error
	if !isFetchErr(err, &e) || e.Kind != errs.KindCancelled {
		t.Fatalf("expected KindCancelled, got %v", err)
	}
}

func isFetchErr(err error, target **errs.Error) bool {
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

func TestHealthParsesStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	cfg := &config.Config{DownloadTimeout: 5 * time.Second}
	server := serverFromTestServer(t, ts)

	status, err := Health(context.Background(), server, cfg)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !status.OK {
		t.Fatalf("expected ok=true, got %+v", status)
	}
}

func TestHealthRejects5xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	cfg := &config.Config{DownloadTimeout: 5 * time.Second}
	server := serverFromTestServer(t, ts)

	if _, err := Health(context.Background(), server, cfg); err == nil {
		t.Fatalf("expected error for 5xx response")
	}
}
